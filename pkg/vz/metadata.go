// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vz

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Namespace is a path of components under which metadata keys live.
// The root namespace has no components.
type Namespace []string

// Encode returns the string form of the namespace: every component is
// prefixed by ':' and the characters ':' and '\' inside components are
// escaped with '\'. The root namespace encodes to "".
func (ns Namespace) Encode() string {
	var b strings.Builder
	for _, c := range ns {
		b.WriteByte(':')
		for i := 0; i < len(c); i++ {
			if c[i] == ':' || c[i] == '\\' {
				b.WriteByte('\\')
			}
			b.WriteByte(c[i])
		}
	}
	return b.String()
}

func (ns Namespace) String() string {
	return ns.Encode()
}

// DecodeNamespace parses the output of Namespace.Encode.
func DecodeNamespace(s string) (Namespace, error) {
	if s == "" {
		return Namespace{}, nil
	}
	if s[0] != ':' {
		return nil, status.Errorf(codes.InvalidArgument, "encoded namespace %q must start with ':'", s)
	}
	ns := Namespace{}
	var cur strings.Builder
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 >= len(s) {
				return nil, status.Errorf(codes.InvalidArgument, "encoded namespace %q ends with a dangling escape", s)
			}
			i++
			cur.WriteByte(s[i])
		case ':':
			ns = append(ns, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(s[i])
		}
	}
	return append(ns, cur.String()), nil
}

// Add returns a new namespace one level deeper.
func (ns Namespace) Add(components ...string) Namespace {
	out := make(Namespace, 0, len(ns)+len(components))
	out = append(out, ns...)
	return append(out, components...)
}

// HasPrefix is true if ns starts with every component of prefix.
func (ns Namespace) HasPrefix(prefix Namespace) bool {
	if len(prefix) > len(ns) {
		return false
	}
	for i := range prefix {
		if ns[i] != prefix[i] {
			return false
		}
	}
	return true
}

type nsEntry struct {
	ns Namespace
	kv map[string]string
}

type metadataStore struct {
	entries map[string]*nsEntry
}

func (s *metadataStore) entry(ns Namespace, create bool) *nsEntry {
	key := ns.Encode()
	e, ok := s.entries[key]
	if !ok && create {
		e = &nsEntry{ns: ns.Add(), kv: map[string]string{}}
		s.entries[key] = e
	}
	return e
}

// Metadata is a namespaced string key-value store attached to a study or a
// trial. Views returned by Ns and AbsNs share storage with the metadata they
// were created from. The zero value is an empty store at the root namespace.
// Metadata is not safe for concurrent use.
type Metadata struct {
	store *metadataStore
	ns    Namespace
}

// NewMetadata returns an empty metadata at the root namespace.
func NewMetadata() Metadata {
	return Metadata{store: &metadataStore{entries: map[string]*nsEntry{}}}
}

func (m *Metadata) init() {
	if m.store == nil {
		m.store = &metadataStore{entries: map[string]*nsEntry{}}
	}
}

// CurrentNs is the absolute namespace of this view.
func (m *Metadata) CurrentNs() Namespace {
	return m.ns.Add()
}

// Ns returns a view one level below the current namespace.
func (m *Metadata) Ns(component string) Metadata {
	m.init()
	return Metadata{store: m.store, ns: m.ns.Add(component)}
}

// AbsNs returns a view at an absolute namespace.
func (m *Metadata) AbsNs(ns Namespace) Metadata {
	m.init()
	return Metadata{store: m.store, ns: ns.Add()}
}

// Get returns the value of key in the current namespace.
func (m *Metadata) Get(key string) (string, bool) {
	if m.store == nil {
		return "", false
	}
	e := m.store.entry(m.ns, false)
	if e == nil {
		return "", false
	}
	v, ok := e.kv[key]
	return v, ok
}

// GetOr returns the value of key, or def when it is missing.
func (m *Metadata) GetOr(key, def string) string {
	if v, ok := m.Get(key); ok {
		return v
	}
	return def
}

// Has is true if key is set in the current namespace.
func (m *Metadata) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Set assigns key in the current namespace.
func (m *Metadata) Set(key, value string) {
	m.init()
	m.store.entry(m.ns, true).kv[key] = value
}

// Delete removes key from the current namespace. Missing keys are ignored.
func (m *Metadata) Delete(key string) {
	if m.store == nil {
		return
	}
	e := m.store.entry(m.ns, false)
	if e == nil {
		return
	}
	delete(e.kv, key)
	if len(e.kv) == 0 {
		delete(m.store.entries, m.ns.Encode())
	}
}

// Keys returns the sorted keys of the current namespace.
func (m *Metadata) Keys() []string {
	if m.store == nil {
		return nil
	}
	e := m.store.entry(m.ns, false)
	if e == nil {
		return nil
	}
	keys := make([]string, 0, len(e.kv))
	for k := range e.kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len is the number of keys in the current namespace.
func (m *Metadata) Len() int {
	if m.store == nil {
		return 0
	}
	if e := m.store.entry(m.ns, false); e != nil {
		return len(e.kv)
	}
	return 0
}

// below returns the entries at or below the current namespace, ordered by encoding.
func (m *Metadata) below() []*nsEntry {
	if m.store == nil {
		return nil
	}
	var out []*nsEntry
	for _, e := range m.store.entries {
		if e.ns.HasPrefix(m.ns) && len(e.kv) > 0 {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ns.Encode() < out[j].ns.Encode()
	})
	return out
}

// IsEmpty is true if no key exists at or below the current namespace.
func (m *Metadata) IsEmpty() bool {
	return len(m.below()) == 0
}

// Namespaces returns every namespace at or below the current one that holds
// at least one key, relative to the current namespace.
func (m *Metadata) Namespaces() []Namespace {
	var out []Namespace
	for _, e := range m.below() {
		out = append(out, e.ns[len(m.ns):].Add())
	}
	return out
}

// SubNamespaces returns the sorted child components that have data below them.
func (m *Metadata) SubNamespaces() []string {
	seen := map[string]struct{}{}
	for _, e := range m.below() {
		if len(e.ns) > len(m.ns) {
			seen[e.ns[len(m.ns)]] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// MetadataItem is a single key-value pair with its namespace.
type MetadataItem struct {
	Ns    Namespace
	Key   string
	Value string
}

// AllItems returns every item at or below the current namespace with
// namespaces relative to the current one.
func (m *Metadata) AllItems() []MetadataItem {
	var out []MetadataItem
	for _, e := range m.below() {
		keys := make([]string, 0, len(e.kv))
		for k := range e.kv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, MetadataItem{Ns: e.ns[len(m.ns):].Add(), Key: k, Value: e.kv[k]})
		}
	}
	return out
}

// Attach copies everything at or below the current namespace of other into
// this metadata, below the current namespace of m. Values in other win.
func (m *Metadata) Attach(other Metadata) {
	items := other.AllItems()
	if len(items) == 0 {
		return
	}
	m.init()
	for _, it := range items {
		m.store.entry(m.ns.Add(it.Ns...), true).kv[it.Key] = it.Value
	}
}

// Clone returns an independent copy of everything at or below the current
// namespace, rooted at the root namespace.
func (m *Metadata) Clone() Metadata {
	out := NewMetadata()
	out.Attach(*m)
	return out
}

// PutJSON stores v as JSON under key.
func (m *Metadata) PutJSON(key string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "cannot encode metadata value %s", key)
	}
	m.Set(key, string(b))
	return nil
}

// GetJSON decodes the JSON value of key into v. It reports whether the key exists.
func (m *Metadata) GetJSON(key string, v interface{}) (bool, error) {
	s, ok := m.Get(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return true, errors.Wrapf(err, "cannot decode metadata value %s", key)
	}
	return true, nil
}

// MetadataDelta is a set of metadata changes produced by a policy: changes to
// the study and to individual trials.
type MetadataDelta struct {
	OnStudy  Metadata
	OnTrials map[int64]Metadata
}

// NewMetadataDelta returns an empty delta.
func NewMetadataDelta() MetadataDelta {
	return MetadataDelta{OnStudy: NewMetadata(), OnTrials: map[int64]Metadata{}}
}

// Study returns the study metadata to write into.
func (d *MetadataDelta) Study() *Metadata {
	d.OnStudy.init()
	return &d.OnStudy
}

// Trial returns the metadata of trial id to write into. Writes are visible in the delta.
func (d *MetadataDelta) Trial(id int64) Metadata {
	if d.OnTrials == nil {
		d.OnTrials = map[int64]Metadata{}
	}
	md, ok := d.OnTrials[id]
	if !ok {
		md = NewMetadata()
		d.OnTrials[id] = md
	}
	return md
}

// IsEmpty is true if the delta carries no change.
func (d *MetadataDelta) IsEmpty() bool {
	if !d.OnStudy.IsEmpty() {
		return false
	}
	for _, md := range d.OnTrials {
		md := md
		if !md.IsEmpty() {
			return false
		}
	}
	return true
}
