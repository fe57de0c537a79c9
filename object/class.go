// ==============================================================================================
// FILE: object/class.go
// ==============================================================================================
// PACKAGE: object
// PURPOSE: Class and instance objects. A Class is little more than an AttrTable of methods with
//          a name and a base; an Instance is an AttrTable of fields chained to its class's table,
//          so method lookup falls through to the class (and its bases) automatically.
// ==============================================================================================

package object

import "fmt"

type Class struct {
	Name  string
	Base  *Class
	Attrs *AttrTable
}

func NewClass(name string, base *Class) *Class {
	var parent *AttrTable
	if base != nil {
		parent = base.Attrs
	}
	return &Class{Name: name, Base: base, Attrs: NewAttrTable(parent)}
}

func (c *Class) Type() Type      { return CLASS_OBJ }
func (c *Class) Inspect() string { return fmt.Sprintf("<class %s>", c.Name) }
func (c *Class) Refs() []Object  { return c.Attrs.Values() }

// IsSubclassOf reports whether c is other or descends from it.
func (c *Class) IsSubclassOf(other *Class) bool {
	for cur := c; cur != nil; cur = cur.Base {
		if cur == other {
			return true
		}
	}
	return false
}

type Instance struct {
	Class *Class
	Attrs *AttrTable
}

func NewInstance(class *Class) *Instance {
	return &Instance{Class: class, Attrs: NewAttrTable(class.Attrs)}
}

func (i *Instance) Type() Type      { return INSTANCE_OBJ }
func (i *Instance) Inspect() string { return fmt.Sprintf("<%s instance>", i.Class.Name) }
func (i *Instance) Refs() []Object  { return i.Attrs.Values() }
