// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"encoding/json"
	"flag"
	"fmt"

	"github.com/devblok/tracer/core"
	"github.com/devblok/tracer/gfx/vkr"
	log "github.com/sirupsen/logrus"
)

var debug = flag.Bool("debug", false, "Enable validation layers")

func main() {
	flag.Parse()

	instance, err := vkr.NewInstance(vkr.InstanceConfiguration{
		AppName: core.EngineName + "info",
		Debug:   *debug,
	}, nil)
	if err != nil {
		log.WithError(err).Fatal("instance")
	}
	defer instance.Destroy()

	bytes, err := json.MarshalIndent(instance.PhysicalDevicesInfo(), "", "  ")
	if err != nil {
		log.WithError(err).Fatal("marshal")
	}
	fmt.Printf("%s\n", bytes)
}
