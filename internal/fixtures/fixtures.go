// Package fixtures declares the record types shared by the package tests.
package fixtures

import (
	"time"

	"github.com/arkilian/simpleorm/pkg/catalog"
	"github.com/arkilian/simpleorm/pkg/types"
)

// Address is a plain record referenced by Person.
type Address struct {
	types.Model
	Street string
	City   string
	Zip    int32
}

// Person owns an optional home address.
type Person struct {
	types.Model
	Name        string
	Email       string
	Age         int8
	HomeAddress *Address

	// Nickname is not registered and therefore never persisted.
	Nickname string
}

// Sample carries one field of every scalar semantic type.
type Sample struct {
	types.Model
	Initial rune
	Tiny    int8
	Small   int16
	Medium  int32
	Large   int64
	Ratio   float32
	Precise float64
	Active  bool
	Payload []byte
	Label   string
	Created time.Time
}

// Entity is a base record providing audit fields.
type Entity struct {
	types.Model
	CreatedBy string
	Revision  int32
}

// Employee inherits the fields of Entity.
type Employee struct {
	Entity
	Title   string
	Manager *Person
}

// Node references itself.
type Node struct {
	types.Model
	Label string
	Next  *Node
}

// Left and Right reference each other.
type Left struct {
	types.Model
	Other *Right
}

type Right struct {
	types.Model
	Other *Left
}

var (
	AddressType = catalog.Define("Address", func() *Address { return &Address{} }).
			String("street", func(a *Address) *string { return &a.Street }).
			String("city", func(a *Address) *string { return &a.City }).
			Int("zip", func(a *Address) *int32 { return &a.Zip }).
			MustBuild()

	PersonType = catalog.Ref(
		catalog.Define("Person", func() *Person { return &Person{} }).
			String("name", func(p *Person) *string { return &p.Name }).
			String("email", func(p *Person) *string { return &p.Email }, catalog.Unique()).
			Byte("age", func(p *Person) *int8 { return &p.Age }),
		"homeAddress", func() *types.RecordType { return AddressType },
		func(p *Person) **Address { return &p.HomeAddress }).
		MustBuild()

	SampleType = catalog.Define("Sample", func() *Sample { return &Sample{} }).
			Char("initial", func(s *Sample) *rune { return &s.Initial }).
			Byte("tiny", func(s *Sample) *int8 { return &s.Tiny }).
			Short("small", func(s *Sample) *int16 { return &s.Small }).
			Int("medium", func(s *Sample) *int32 { return &s.Medium }).
			Long("large", func(s *Sample) *int64 { return &s.Large }).
			Float("ratio", func(s *Sample) *float32 { return &s.Ratio }).
			Double("precise", func(s *Sample) *float64 { return &s.Precise }).
			Boolean("active", func(s *Sample) *bool { return &s.Active }).
			Bytes("payload", func(s *Sample) *[]byte { return &s.Payload }).
			String("label", func(s *Sample) *string { return &s.Label }).
			Date("created", func(s *Sample) *time.Time { return &s.Created }).
			MustBuild()

	EntityType = catalog.Define("Entity", func() *Entity { return &Entity{} }).
			String("createdBy", func(e *Entity) *string { return &e.CreatedBy }).
			Int("revision", func(e *Entity) *int32 { return &e.Revision }).
			MustBuild()

	EmployeeType = catalog.Ref(
		catalog.Inherit(
			catalog.Define("Employee", func() *Employee { return &Employee{} }),
			EntityType, func(e *Employee) *Entity { return &e.Entity }).
			String("title", func(e *Employee) *string { return &e.Title }),
		"manager", func() *types.RecordType { return PersonType },
		func(e *Employee) **Person { return &e.Manager }).
		MustBuild()
)

// Types that reference themselves, directly or through each other, are built
// in init to avoid an initialization cycle.
var (
	NodeType  *types.RecordType
	LeftType  *types.RecordType
	RightType *types.RecordType
)

func init() {
	NodeType = catalog.Ref(
		catalog.Define("Node", func() *Node { return &Node{} }).
			String("label", func(n *Node) *string { return &n.Label }),
		"next", func() *types.RecordType { return NodeType },
		func(n *Node) **Node { return &n.Next }).
		MustBuild()

	LeftType = catalog.Ref(catalog.Define("LeftSide", func() *Left { return &Left{} }),
		"other", func() *types.RecordType { return RightType },
		func(l *Left) **Right { return &l.Other }).
		MustBuild()

	RightType = catalog.Ref(catalog.Define("RightSide", func() *Right { return &Right{} }),
		"other", func() *types.RecordType { return LeftType },
		func(r *Right) **Left { return &r.Other }).
		MustBuild()
}

func (a *Address) RecordType() *types.RecordType  { return AddressType }
func (p *Person) RecordType() *types.RecordType   { return PersonType }
func (s *Sample) RecordType() *types.RecordType   { return SampleType }
func (e *Entity) RecordType() *types.RecordType   { return EntityType }
func (e *Employee) RecordType() *types.RecordType { return EmployeeType }
func (n *Node) RecordType() *types.RecordType     { return NodeType }
func (l *Left) RecordType() *types.RecordType     { return LeftType }
func (r *Right) RecordType() *types.RecordType    { return RightType }
