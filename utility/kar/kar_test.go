// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	qt "github.com/frankban/quicktest"

	"github.com/devblok/tracer/model"
	"github.com/devblok/tracer/utility/kar"
)

var (
	testString1 = "idunvovkjnreovmegihjbrqlkmfrjnb"
	testString2 = "idunvovkjnreovmsdvwrvnervnreegihjbrqlkmfrjnb"
)

func newBuilder(c *qt.C) *kar.Builder {
	builder, err := kar.NewBuilder(kar.Header{
		Author:      "devblok",
		DateCreated: time.Now().Unix(),
		Version:     1,
	})
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { builder.Close() })
	return builder
}

func build(c *qt.C) []byte {
	builder := newBuilder(c)
	c.Assert(builder.Add("test", strings.NewReader(testString1)), qt.IsNil)
	c.Assert(builder.Add("test2", strings.NewReader(testString2)), qt.IsNil)
	c.Assert(builder.Len(), qt.Equals, 2)

	var buf bytes.Buffer
	written, err := builder.WriteTo(&buf)
	c.Assert(err, qt.IsNil)
	c.Assert(written, qt.Equals, int64(buf.Len()))
	return buf.Bytes()
}

func TestCreateAndRead(t *testing.T) {
	c := qt.New(t)
	ar, err := kar.Open(bytes.NewReader(build(c)))
	c.Assert(err, qt.IsNil)

	f, err := ar.Open("test")
	c.Assert(err, qt.IsNil)
	c.Assert(f.Size(), qt.Equals, int64(len(testString1)))

	result := make([]byte, len(testString1))
	_, err = io.ReadFull(f, result)
	c.Assert(err, qt.IsNil)
	c.Assert(string(result), qt.Equals, testString1)
}

func TestCreateAndReadAll(t *testing.T) {
	c := qt.New(t)
	ar, err := kar.Open(bytes.NewReader(build(c)))
	c.Assert(err, qt.IsNil)

	c.Assert(ar.Header().Author, qt.Equals, "devblok")
	entries := ar.Entries()
	c.Assert(entries, qt.HasLen, 2)
	c.Assert(entries[0].Offset, qt.Equals, int64(0))
	c.Assert(entries[1].Offset, qt.Equals, entries[0].CompressedSize)

	for name, want := range map[string]string{"test": testString1, "test2": testString2} {
		data, err := ar.ReadAll(name)
		c.Assert(err, qt.IsNil)
		c.Assert(string(data), qt.Equals, want)
	}

	_, err = ar.ReadAll("missing")
	c.Assert(errors.Is(err, kar.ErrNotFound), qt.IsTrue)
}

func TestDuplicateEntry(t *testing.T) {
	c := qt.New(t)
	builder := newBuilder(c)
	c.Assert(builder.Add("test", strings.NewReader(testString1)), qt.IsNil)
	c.Assert(builder.Add("test", strings.NewReader(testString2)), qt.ErrorMatches, `duplicate entry "test"`)
	c.Assert(builder.Len(), qt.Equals, 1)
}

func TestOpenRejectsGarbage(t *testing.T) {
	c := qt.New(t)
	for name, data := range map[string][]byte{
		"empty":     nil,
		"magic":     []byte("TAR\x00\x10\x00\x00\x00\x00\x00\x00\x00"),
		"truncated": build(c)[:20],
	} {
		_, err := kar.Open(bytes.NewReader(data))
		c.Assert(errors.Is(err, kar.ErrFileFormat), qt.IsTrue, qt.Commentf("%s: %v", name, err))
	}
}

func TestOpenFile(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(c.TempDir(), "opentest.kar")
	c.Assert(os.WriteFile(path, build(c), 0o644), qt.IsNil)

	ar, err := kar.OpenFile(path)
	c.Assert(err, qt.IsNil)
	defer ar.Close()

	data, err := ar.ReadAll("test2")
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, testString2)

	_, err = kar.OpenFile(filepath.Join(c.TempDir(), "missing.kar"))
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestMeshes(t *testing.T) {
	c := qt.New(t)
	builder := newBuilder(c)
	c.Assert(builder.AddMesh(model.Triangle()), qt.IsNil)
	c.Assert(builder.Add("notes.txt", strings.NewReader("not a mesh")), qt.IsNil)
	c.Assert(builder.AddMesh(&model.Mesh{}), qt.ErrorMatches, "mesh without a name")

	var buf bytes.Buffer
	_, err := builder.WriteTo(&buf)
	c.Assert(err, qt.IsNil)

	ar, err := kar.Open(bytes.NewReader(buf.Bytes()))
	c.Assert(err, qt.IsNil)
	c.Assert(ar.Meshes(), qt.DeepEquals, []string{"triangle"})

	mesh, err := ar.Mesh("triangle")
	c.Assert(err, qt.IsNil)
	c.Assert(mesh, qt.DeepEquals, model.Triangle())
}
