package config

import (
	"fmt"
	"image/color"
	"strings"
	"time"
)

// Color is an opaque RGB color written as "#rrggbb".
type Color color.RGBA

func ParseColor(s string) (Color, error) {
	var c Color
	return c, c.UnmarshalText([]byte(s))
}

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Color) UnmarshalText(text []byte) error {
	s := strings.TrimPrefix(strings.TrimSpace(string(text)), "#")
	s = strings.TrimPrefix(s, "0x")
	var r, g, b uint8
	if len(s) != 6 {
		return fmt.Errorf("%w: color %q", ErrInvalid, text)
	}
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
		return fmt.Errorf("%w: color %q", ErrInvalid, text)
	}
	*c = Color{R: r, G: g, B: b, A: 0xff}
	return nil
}

func (c *Color) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return c.UnmarshalText([]byte(s))
}

// Duration accepts time.ParseDuration strings such as "30s".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("%w: duration %q", ErrInvalid, text)
	}
	*d = Duration(v)
	return nil
}

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}
