// Package scene holds the renderable node tree built from decoded models.
package scene

import (
	"github.com/binzume/modelview/geom"
)

// Node is a tree node with a local transform and an optional drawable.
// Children are owned exclusively by their parent.
type Node struct {
	Name     string
	Position geom.Vector3
	Rotation geom.Vector3 // euler XYZ, radians
	Scale    geom.Vector3
	Drawable *Drawable
	Children []*Node
}

func NewNode(name string) *Node {
	return &Node{Name: name, Scale: geom.Vector3{X: 1, Y: 1, Z: 1}}
}

func (n *Node) Add(child *Node) *Node {
	n.Children = append(n.Children, child)
	return child
}

// LocalMatrix returns translate * rotate * scale.
func (n *Node) LocalMatrix() *geom.Matrix4 {
	return geom.NewTRSMatrix4(&n.Position, &n.Rotation, &n.Scale)
}

// Walk calls fn for n and its descendants in depth-first order with their world matrices.
func (n *Node) Walk(fn func(node *Node, world *geom.Matrix4)) {
	n.walk(geom.NewMatrix4(), fn)
}

func (n *Node) walk(parent *geom.Matrix4, fn func(node *Node, world *geom.Matrix4)) {
	world := parent.Mul(n.LocalMatrix())
	fn(n, world)
	for _, c := range n.Children {
		c.walk(world, fn)
	}
}

// Count returns the number of nodes in the subtree.
func (n *Node) Count() int {
	count := 1
	for _, c := range n.Children {
		count += c.Count()
	}
	return count
}

// Drawables returns every drawable in the subtree.
func (n *Node) Drawables() []*Drawable {
	var ds []*Drawable
	n.Walk(func(node *Node, _ *geom.Matrix4) {
		if node.Drawable != nil {
			ds = append(ds, node.Drawable)
		}
	})
	return ds
}

// Find returns the first node named name, or nil.
func (n *Node) Find(name string) *Node {
	if n.Name == name {
		return n
	}
	for _, c := range n.Children {
		if f := c.Find(name); f != nil {
			return f
		}
	}
	return nil
}

// BoundingBox returns the world space bounds of every drawable under root.
func BoundingBox(root *Node) *geom.Box3 {
	b := geom.NewBox3()
	root.Walk(func(node *Node, world *geom.Matrix4) {
		if node.Drawable == nil {
			return
		}
		for i := range node.Drawable.Positions {
			b.ExpandByPoint(world.ApplyTo(&node.Drawable.Positions[i]))
		}
	})
	return b
}
