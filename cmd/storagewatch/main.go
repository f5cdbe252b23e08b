// StorageWatch
// Copyright (c) 2025 The StorageWatch Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of StorageWatch.
//
// StorageWatch is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// StorageWatch is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with StorageWatch.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/storagewatch/storagewatch/pkg/config"
	"github.com/storagewatch/storagewatch/pkg/helpers"
	"github.com/storagewatch/storagewatch/pkg/storage"
	"github.com/storagewatch/storagewatch/pkg/storage/monitor"
)

const appName = "storagewatch"

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	watchMode := flag.Bool(
		"watch",
		false,
		"stay running and print storage events as they happen",
	)
	jsonOutput := flag.Bool(
		"json",
		false,
		"print snapshot and events as JSON",
	)
	debugMode := flag.Bool(
		"debug",
		false,
		"enable debug logging",
	)
	flag.Parse()

	cfg, err := config.NewConfig(
		filepath.Join(xdg.ConfigHome, appName),
		config.BaseDefaults,
	)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr}}
	if err := helpers.InitLogging(
		filepath.Join(xdg.StateHome, appName),
		writers,
	); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	if *debugMode || cfg.DebugLogging() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	mon := monitor.New(cfg)

	if !*watchMode {
		return printSnapshot(mon, *jsonOutput)
	}

	return watch(mon, *jsonOutput)
}

func printSnapshot(mon *monitor.Monitor, asJSON bool) error {
	devices, volumes, err := mon.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	if asJSON {
		out := struct {
			Devices []storage.Device `json:"devices"`
			Volumes []storage.Volume `json:"volumes"`
		}{Devices: devices, Volumes: volumes}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		return nil
	}

	for i := range devices {
		dev := &devices[i]
		fmt.Printf("device %s (%s)\n", dev.ID, dev.Kind)
		if dev.DisplayName != "" {
			fmt.Printf("  name:  %s\n", dev.DisplayName)
		}
		if dev.Model != "" {
			fmt.Printf("  model: %s\n", dev.Model)
		}
		for _, id := range dev.Volumes.IDs() {
			fmt.Printf("  volume %s\n", id)
		}
	}
	for i := range volumes {
		vol := &volumes[i]
		fmt.Printf("volume %s on %s\n", vol.ID, vol.DeviceID)
		if vol.DisplayName != "" {
			fmt.Printf("  name:  %s\n", vol.DisplayName)
		}
		if len(vol.Mounts) > 0 {
			fmt.Printf("  mount: %s\n", vol.Mounts[0])
		}
		if vol.Size != nil {
			fmt.Printf("  size:  %d\n", *vol.Size)
		}
		if vol.Free != nil {
			fmt.Printf("  free:  %d\n", *vol.Free)
		}
	}

	return nil
}

func watch(mon *monitor.Monitor, asJSON bool) error {
	events := make(chan storage.Event, 32)
	errCh := make(chan error, 1)

	go func() {
		errCh <- mon.Run(events)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	enc := json.NewEncoder(os.Stdout)

	for {
		select {
		case ev := <-events:
			if asJSON {
				if err := enc.Encode(eventEnvelope(ev)); err != nil {
					log.Error().Err(err).Msg("encoding event")
				}
				continue
			}
			printEvent(ev)
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("shutting down")
			mon.Stop()
			return <-errCh
		case err := <-errCh:
			return err
		}
	}
}

// eventEnvelope tags an event with its type so JSON consumers can
// dispatch without guessing from the field shape.
func eventEnvelope(ev storage.Event) any {
	type envelope struct {
		Type string `json:"type"`
		Data any    `json:"data,omitempty"`
	}
	switch e := ev.(type) {
	case storage.DeviceAdded:
		return envelope{Type: "device-added", Data: e.Device}
	case storage.DeviceUpdated:
		return envelope{Type: "device-updated", Data: e.Device}
	case storage.DeviceRemoved:
		return envelope{Type: "device-removed", Data: e.ID}
	case storage.VolumeAdded:
		return envelope{Type: "volume-added", Data: e.Volume}
	case storage.VolumeUpdated:
		return envelope{Type: "volume-updated", Data: e.Volume}
	case storage.VolumeRemoved:
		return envelope{Type: "volume-removed", Data: e.ID}
	case storage.Refresh:
		return envelope{Type: "refresh"}
	default:
		return envelope{Type: "unknown"}
	}
}

func printEvent(ev storage.Event) {
	switch e := ev.(type) {
	case storage.DeviceAdded:
		fmt.Printf("device added:   %s (%s)\n", e.Device.ID, e.Device.Kind)
	case storage.DeviceUpdated:
		fmt.Printf("device updated: %s (%s)\n", e.Device.ID, e.Device.Kind)
	case storage.DeviceRemoved:
		fmt.Printf("device removed: %s\n", e.ID)
	case storage.VolumeAdded:
		mount := ""
		if len(e.Volume.Mounts) > 0 {
			mount = " at " + e.Volume.Mounts[0]
		}
		fmt.Printf("volume added:   %s%s\n", e.Volume.ID, mount)
	case storage.VolumeUpdated:
		fmt.Printf("volume updated: %s\n", e.Volume.ID)
	case storage.VolumeRemoved:
		fmt.Printf("volume removed: %s\n", e.ID)
	case storage.Refresh:
		fmt.Println("refresh: device list changed, re-enumerate")
	}
}
