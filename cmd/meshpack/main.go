// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/devblok/tracer/model"
	"github.com/devblok/tracer/utility/kar"
	log "github.com/sirupsen/logrus"
)

var (
	author   = flag.String("author", currentUser(), "Set the author of the archive")
	version  = flag.Int64("version", 1, "Archive version number to create it with")
	compress = flag.String("c", "", "Pack every .dae file under the given file or folder")
	list     = flag.String("l", "", "List the meshes of the given archive")
	dstFile  = flag.String("f", "out.kar", "Destination file")
)

func currentUser() string {
	u, err := user.Current()
	if err != nil {
		return "unknown"
	}
	return u.Username
}

func main() {
	flag.Parse()

	if *list != "" && *compress != "" {
		log.Fatal("only one operation at a time")
	}

	switch {
	case *compress != "":
		if err := pack(*compress, *dstFile); err != nil {
			log.WithError(err).Fatal("pack")
		}
	case *list != "":
		if err := listMeshes(*list); err != nil {
			log.WithError(err).Fatal("list")
		}
	default:
		flag.PrintDefaults()
	}
}

func pack(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return errors.Newf("%s exists, will not overwrite", dst)
	}

	var files []string
	err := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.EqualFold(filepath.Ext(path), ".dae") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.Newf("no .dae files under %s", src)
	}

	builder, err := kar.NewBuilder(kar.Header{
		Author:      *author,
		DateCreated: time.Now().Unix(),
		Version:     *version,
	})
	if err != nil {
		return err
	}
	defer builder.Close()

	for _, path := range files {
		data, err := ioutil.ReadFile(path)
		if err != nil {
			return err
		}
		meshes, err := model.ImportCollada(data)
		if err != nil {
			return errors.Wrap(err, path)
		}
		for _, mesh := range meshes {
			if err := builder.AddMesh(mesh); err != nil {
				return errors.Wrap(err, path)
			}
			log.WithFields(log.Fields{
				"file":      path,
				"mesh":      mesh.Name,
				"triangles": mesh.TriangleCount(),
			}).Info("packed")
		}
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := builder.WriteTo(out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func listMeshes(path string) error {
	ar, err := kar.OpenFile(path)
	if err != nil {
		return err
	}
	defer ar.Close()

	header := ar.Header()
	fmt.Printf("author %s, version %d, created %s\n", header.Author, header.Version, time.Unix(header.DateCreated, 0).Format(time.RFC3339))
	for _, name := range ar.Meshes() {
		mesh, err := ar.Mesh(name)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%d vertices\t%d triangles\n", name, len(mesh.Vertices), mesh.TriangleCount())
	}
	return nil
}
