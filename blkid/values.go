// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package blkid

import (
	"iter"

	"github.com/elliotchance/orderedmap/v2"
)

// Tag is a name/value pair reported by a detector.
type Tag struct {
	Name  string
	Value string
}

// Values is an ordered list of tags produced by a probing operation.
//
// Values are never modified once returned, all views are consistent with each other.
// A nil *Values is empty.
type Values struct {
	m *orderedmap.OrderedMap[string, string]
}

func newValues() *Values {
	return &Values{
		m: orderedmap.NewOrderedMap[string, string](),
	}
}

// set adds or replaces a value, the original position is kept.
func (v *Values) set(name, value string) {
	v.m.Set(name, value)
}

func (v *Values) merge(other *Values) {
	for name, value := range other.All() {
		v.set(name, value)
	}
}

// Len returns the number of tags.
func (v *Values) Len() int {
	if v == nil {
		return 0
	}

	return v.m.Len()
}

// Lookup returns the value of the named tag.
func (v *Values) Lookup(name string) (string, bool) {
	if v == nil {
		return "", false
	}

	return v.m.Get(name)
}

// All iterates over tags in order.
func (v *Values) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		if v == nil {
			return
		}

		for el := v.m.Front(); el != nil; el = el.Next() {
			if !yield(el.Key, el.Value) {
				return
			}
		}
	}
}

// Keys returns tag names in order.
func (v *Values) Keys() []string {
	keys := make([]string, 0, v.Len())

	for name := range v.All() {
		keys = append(keys, name)
	}

	return keys
}

// Values returns tag values in order.
func (v *Values) Values() []string {
	values := make([]string, 0, v.Len())

	for _, value := range v.All() {
		values = append(values, value)
	}

	return values
}

// Items returns tags in order.
func (v *Values) Items() []Tag {
	items := make([]Tag, 0, v.Len())

	for name, value := range v.All() {
		items = append(items, Tag{Name: name, Value: value})
	}

	return items
}
