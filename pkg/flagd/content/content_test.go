package content

import (
	"context"
	"testing"

	"github.com/mikepea/flagd/pkg/flagd/database"
	"github.com/mikepea/flagd/pkg/flagd/flagerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type post struct{ id uint }

func (p post) FlagRef() Ref { return Ref{Type: "blog.post", ObjectID: p.id} }

type comment struct{ id uint }

func (c *comment) FlagRef() Ref { return Ref{Type: "blog.comment", ObjectID: c.id} }

func testRegistry() *Registry {
	return MustRegistry(
		TypeSpec{Name: "blog.post", ID: 7, Table: "posts", CreatorFields: []string{"author_id"}},
		TypeSpec{Name: "Blog.Comment", Table: "comments"},
	)
}

func TestNewRegistryValidation(t *testing.T) {
	bad := [][]TypeSpec{
		{{Name: "post"}},
		{{Name: "blog.post"}, {Name: "blog.post"}},
		{{Name: "blog.post", ID: 1}, {Name: "blog.comment", ID: 1}},
		{{Name: "blog.post", Table: "posts; drop table users"}},
		{{Name: "blog.post", CreatorFields: []string{"author id"}}},
		{{Name: "blog.1post"}},
	}
	for _, specs := range bad {
		_, err := NewRegistry(specs...)
		assert.Error(t, err, "%+v", specs)
	}
	assert.Panics(t, func() { MustRegistry(TypeSpec{Name: "nodot"}) })
}

func TestRegistryLookup(t *testing.T) {
	r := testRegistry()

	spec, ok := r.Lookup("blog.comment")
	require.True(t, ok, "names are stored lowercased")
	assert.Equal(t, "comments", spec.Table)

	_, ok = r.Lookup("blog.tag")
	assert.False(t, ok)
	assert.Equal(t, []string{"blog.comment", "blog.post"}, r.Types())
}

func TestToRef(t *testing.T) {
	r := testRegistry()
	want := Ref{Type: "blog.post", ObjectID: 3}

	tests := []struct {
		name string
		in   Input
	}{
		{"by name", ByName("blog.post", 3)},
		{"by type id", ByTypeID(7, 3)},
		{"parsed name", Parse(" Blog.Post ", "3")},
		{"parsed type id", Parse("7", " 3 ")},
		{"object", Of(post{id: 3})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ToRef(tt.in)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestToRefFailures(t *testing.T) {
	r := testRegistry()

	tests := []struct {
		name string
		in   Input
	}{
		{"unknown name", ByName("blog.tag", 1)},
		{"unknown type id", ByTypeID(99, 1)},
		{"zero object id", ByName("blog.post", 0)},
		{"non numeric id", Parse("blog.post", "abc")},
		{"negative id", Parse("blog.post", "-1")},
		{"zero parsed id", Parse("blog.post", "0")},
		{"nil object", Of(nil)},
		{"nil pointer object", Of((*comment)(nil))},
		{"empty input", Input{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.ToRef(tt.in)
			assert.ErrorIs(t, err, flagerr.ErrContentNotFound)
		})
	}
}

func TestToRefPointerItem(t *testing.T) {
	got, err := testRegistry().ToRef(Of(&comment{id: 4}))
	require.NoError(t, err)
	assert.Equal(t, Ref{Type: "blog.comment", ObjectID: 4}, got)
}

func TestRefString(t *testing.T) {
	assert.Equal(t, "blog.post#12", Ref{Type: "blog.post", ObjectID: 12}.String())
}

func TestItemCreator(t *testing.T) {
	it := Item{
		Ref: Ref{Type: "blog.post", ObjectID: 1},
		Attrs: map[string]any{
			"author_id": int64(5),
			"editor_id": nil,
			"zero_id":   0,
			"negative":  int64(-4),
			"neg_int":   -1,
			"title":     "hello",
		},
	}

	id, err := it.Creator("author_id")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, uint(5), *id)

	id, err = it.Creator("")
	require.NoError(t, err)
	assert.Nil(t, id)

	id, err = it.Creator("editor_id")
	require.NoError(t, err)
	assert.Nil(t, id)

	id, err = it.Creator("zero_id")
	require.NoError(t, err)
	assert.Nil(t, id)

	id, err = it.Creator("negative")
	require.NoError(t, err)
	assert.Nil(t, id, "negative ids mean no creator")

	id, err = it.Creator("neg_int")
	require.NoError(t, err)
	assert.Nil(t, id)

	_, err = it.Creator("title")
	assert.ErrorIs(t, err, flagerr.ErrUnknownCreatorField)

	_, err = it.Creator("owner_id")
	assert.ErrorIs(t, err, flagerr.ErrUnknownCreatorField)
}

func TestMemResolver(t *testing.T) {
	r := NewMemResolver()
	ref := Ref{Type: "blog.post", ObjectID: 1}
	attrs := map[string]any{"author_id": uint(2)}
	r.Put(ref, attrs)
	attrs["author_id"] = uint(3)

	it, err := r.Resolve(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, uint(2), it.Attrs["author_id"], "Put copies its attributes")

	_, err = r.Resolve(context.Background(), Ref{Type: "blog.post", ObjectID: 2})
	assert.ErrorIs(t, err, flagerr.ErrContentNotFound)
}

func TestGormResolver(t *testing.T) {
	db, err := database.Connect("sqlite://:memory:", 0, nil)
	require.NoError(t, err)
	require.NoError(t, db.Exec("CREATE TABLE posts (id INTEGER PRIMARY KEY, author_id INTEGER, title TEXT)").Error)
	require.NoError(t, db.Exec("INSERT INTO posts (id, author_id, title) VALUES (1, 9, 'hi'), (2, NULL, 'anon')").Error)

	r := NewGormResolver(db, testRegistry())
	ctx := context.Background()

	it, err := r.Resolve(ctx, Ref{Type: "blog.post", ObjectID: 1})
	require.NoError(t, err)
	id, err := it.Creator("author_id")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, uint(9), *id)
	_, hasTitle := it.Attrs["title"]
	assert.False(t, hasTitle, "only creator fields are read")

	it, err = r.Resolve(ctx, Ref{Type: "blog.post", ObjectID: 2})
	require.NoError(t, err)
	id, err = it.Creator("author_id")
	require.NoError(t, err)
	assert.Nil(t, id)

	_, err = r.Resolve(ctx, Ref{Type: "blog.post", ObjectID: 3})
	assert.ErrorIs(t, err, flagerr.ErrContentNotFound)

	_, err = r.Resolve(ctx, Ref{Type: "blog.tag", ObjectID: 1})
	assert.ErrorIs(t, err, flagerr.ErrContentNotFound)
}
