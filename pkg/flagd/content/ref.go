// Package content identifies flaggable items and resolves them for the engine.
package content

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/mikepea/flagd/pkg/flagd/flagerr"
)

// Ref is the natural key of a flaggable item: its content type name
// ("app.model") and its object id.
type Ref struct {
	Type     string `json:"content_type"`
	ObjectID uint   `json:"object_id"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s#%d", r.Type, r.ObjectID)
}

// Flaggable is implemented by domain objects that know their own Ref.
type Flaggable interface {
	FlagRef() Ref
}

type inputKind int

const (
	kindName inputKind = iota + 1
	kindTypeID
	kindRaw
	kindItem
)

// Input is one of the accepted ways of naming a content item. Build it with
// ByName, ByTypeID, Parse or Of and turn it into a Ref with Registry.ToRef.
type Input struct {
	kind     inputKind
	typeName string
	typeID   uint
	objectID uint
	rawType  string
	rawID    string
	item     Flaggable
}

// ByName names an item by content type name and object id.
func ByName(typeName string, objectID uint) Input {
	return Input{kind: kindName, typeName: typeName, objectID: objectID}
}

// ByTypeID names an item by the numeric id of its content type.
func ByTypeID(typeID, objectID uint) Input {
	return Input{kind: kindTypeID, typeID: typeID, objectID: objectID}
}

// Parse names an item from untrusted strings, as they arrive from a form or
// URL. contentType may be a type name or a numeric type id.
func Parse(contentType, objectID string) Input {
	return Input{kind: kindRaw, rawType: contentType, rawID: objectID}
}

// Of names a domain object directly.
func Of(item Flaggable) Input {
	return Input{kind: kindItem, item: item}
}

// ToRef normalizes in against the registry. Unknown types and malformed ids
// fail with flagerr.ErrContentNotFound.
func (r *Registry) ToRef(in Input) (Ref, error) {
	switch in.kind {
	case kindName:
		return r.refByName(in.typeName, in.objectID)
	case kindTypeID:
		spec, ok := r.byID[in.typeID]
		if !ok {
			return Ref{}, fmt.Errorf("%w: no content type with id %d", flagerr.ErrContentNotFound, in.typeID)
		}
		return Ref{Type: spec.Name, ObjectID: in.objectID}, nil
	case kindRaw:
		id, err := strconv.ParseUint(strings.TrimSpace(in.rawID), 10, 64)
		if err != nil || id == 0 {
			return Ref{}, fmt.Errorf("%w: invalid object id %q", flagerr.ErrContentNotFound, in.rawID)
		}
		ct := strings.TrimSpace(in.rawType)
		if typeID, err := strconv.ParseUint(ct, 10, 64); err == nil {
			return r.ToRef(ByTypeID(uint(typeID), uint(id)))
		}
		return r.refByName(strings.ToLower(ct), uint(id))
	case kindItem:
		if isNil(in.item) {
			return Ref{}, fmt.Errorf("%w: nil item", flagerr.ErrContentNotFound)
		}
		ref := in.item.FlagRef()
		return r.refByName(ref.Type, ref.ObjectID)
	}
	return Ref{}, fmt.Errorf("%w: empty content reference", flagerr.ErrContentNotFound)
}

// isNil also catches a nil pointer stored in the interface.
func isNil(item Flaggable) bool {
	if item == nil {
		return true
	}
	v := reflect.ValueOf(item)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func (r *Registry) refByName(name string, objectID uint) (Ref, error) {
	if _, ok := r.byName[name]; !ok {
		return Ref{}, fmt.Errorf("%w: content type %q does not resolve to a known model", flagerr.ErrContentNotFound, name)
	}
	if objectID == 0 {
		return Ref{}, fmt.Errorf("%w: missing object id", flagerr.ErrContentNotFound)
	}
	return Ref{Type: name, ObjectID: objectID}, nil
}
