// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"flag"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/devblok/tracer/core"
	"github.com/devblok/tracer/gfx/accel"
	"github.com/devblok/tracer/gfx/mem"
	"github.com/devblok/tracer/gfx/shader"
	"github.com/devblok/tracer/gfx/vkr"
	"github.com/gobuffalo/packr"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
)

func init() {
	runtime.LockOSThread()
}

var (
	configFiles = flag.String("config", "", "Comma separated .env files to read configuration from")
	archive     = flag.String("archive", "", "Mesh archive to build the scene from, the built-in triangle when empty")
	windowed    = flag.Bool("window", false, "Open a window and poll its events")
)

func newWindow(cfg core.Configuration) (*sdl.Window, error) {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return nil, errors.Wrap(err, "sdl.Init()")
	}
	if err := sdl.VulkanLoadLibrary(""); err != nil {
		return nil, errors.Wrap(err, "sdl.VulkanLoadLibrary()")
	}
	window, err := sdl.CreateWindow(cfg.AppName,
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.Renderer.ScreenWidth),
		int32(cfg.Renderer.ScreenHeight),
		sdl.WINDOW_VULKAN)
	if err != nil {
		return nil, errors.Wrap(err, "sdl.CreateWindow()")
	}
	return window, nil
}

func main() {
	flag.Parse()

	var files []string
	if *configFiles != "" {
		files = strings.Split(*configFiles, ",")
	}
	cfg, err := core.LoadConfiguration(files...)
	if err != nil {
		log.WithError(err).Fatal("configuration")
	}
	logger, err := core.NewLogger(cfg.Log)
	if err != nil {
		log.WithError(err).Fatal("logger")
	}

	logger.WithFields(log.Fields{
		"app":     cfg.AppName,
		"version": core.Version(),
	}).Info("starting")
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("tracer stopped")
	}
}

func run(cfg core.Configuration, logger *log.Logger) error {
	var (
		window     *sdl.Window
		procAddr   unsafe.Pointer
		extensions = cfg.Renderer.InstanceExtensions
	)
	if *windowed {
		var err error
		if window, err = newWindow(cfg); err != nil {
			return err
		}
		defer sdl.Quit()
		defer sdl.VulkanUnloadLibrary()
		defer window.Destroy()
		procAddr = sdl.VulkanGetVkGetInstanceProcAddr()
		extensions = append(window.VulkanGetInstanceExtensions(), extensions...)
	}

	instance, err := vkr.NewInstance(vkr.InstanceConfiguration{
		AppName:    cfg.AppName,
		Debug:      cfg.Debug,
		Extensions: extensions,
	}, procAddr)
	if err != nil {
		return err
	}
	defer instance.Destroy()

	if window != nil {
		surface, err := window.VulkanCreateSurface(instance.Handle())
		if err != nil {
			return errors.Wrap(err, "sdl.VulkanCreateSurface()")
		}
		instance.SetSurface(surface)
	}

	physical := -1
	for idx, info := range instance.PhysicalDevicesInfo() {
		logger.WithFields(log.Fields{
			"name":       info.Name,
			"rayTracing": info.RayTracing,
		}).Debug("physical device")
		if physical < 0 && info.RayTracing && !info.Invalid {
			physical = idx
		}
	}
	if physical < 0 {
		return errors.New("no physical device supports ray tracing")
	}

	device, err := vkr.NewDevice(instance, vkr.DeviceConfiguration{
		PhysicalDevice: physical,
		Extensions:     cfg.Renderer.DeviceExtensions,
		Log:            logger,
	})
	if err != nil {
		return err
	}
	defer device.Destroy()

	compiler := shader.NewCompiler(device, logger)
	modules, err := compiler.LoadBox(packr.NewBox("./shaders"))
	if err != nil {
		logger.WithError(err).Warn("shaders not loaded")
	}
	defer func() {
		for _, module := range modules {
			module.Release()
		}
	}()

	policy, err := accel.ParseScratchPolicy(cfg.Renderer.ScratchPolicy)
	if err != nil {
		return err
	}
	alloc := mem.NewAllocator(device, mem.WithPageSize(cfg.Renderer.PageSize), mem.WithLogger(logger))
	defer alloc.Destroy()
	builder := accel.NewBuilder(device, alloc, device.Queue(), device.QueueFamily(),
		accel.WithScratchPolicy(policy),
		accel.WithWaitTimeout(cfg.Renderer.WaitTimeout),
		accel.WithLogger(logger))

	meshes, err := loadMeshes(*archive)
	if err != nil {
		return err
	}
	scene, err := newScene(device, alloc, builder, meshes, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := scene.release(); err != nil {
			logger.WithError(err).Error("scene release")
		}
	}()

	clock := core.NewTime(cfg.Time)
	defer clock.Stop()
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	var updates int
EventLoop:
	for {
		select {
		case <-interrupt:
			break EventLoop
		case <-clock.UpdateTicker().C:
			if err := scene.update(clock.Elapsed()); err != nil {
				return errors.Wrap(err, "scene update")
			}
			updates++
		case <-clock.EventTicker().C:
			if window != nil && pollQuit() {
				break EventLoop
			}
		}
	}

	logger.WithFields(log.Fields{
		"updates": updates,
		"elapsed": clock.Elapsed(),
	}).Info("event loop exited")
	return nil
}

// pollQuit drains pending window events and reports whether the user asked to quit.
func pollQuit() bool {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch et := event.(type) {
		case *sdl.KeyboardEvent:
			if et.Keysym.Sym == sdl.K_ESCAPE {
				return true
			}
		case *sdl.QuitEvent:
			return true
		}
	}
	return false
}
