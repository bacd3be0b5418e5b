// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build linux

package detect

import (
	"bufio"
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// querySystem prefers MemAvailable, which counts reclaimable page cache,
// over sysinfo's free RAM.
func querySystem(ctx context.Context) (Reading, error) {
	if r, err := readMeminfo("/proc/meminfo"); err == nil {
		return r, nil
	}

	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return Reading{}, err
	}
	unit := uint64(info.Unit)
	return Reading{
		Source:    SourceSystem,
		Total:     uint64(info.Totalram) * unit,
		Available: (uint64(info.Freeram) + uint64(info.Bufferram)) * unit,
	}, nil
}

func readMeminfo(path string) (Reading, error) {
	f, err := os.Open(path)
	if err != nil {
		return Reading{}, err
	}
	defer f.Close()
	return parseMeminfo(f)
}

func parseMeminfo(f io.Reader) (Reading, error) {
	r := Reading{Source: SourceSystem}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			r.Total = kb << 10
		case "MemAvailable:":
			r.Available = kb << 10
		}
	}
	if err := scanner.Err(); err != nil {
		return Reading{}, err
	}
	if r.Total == 0 || r.Available == 0 {
		return Reading{}, ErrUnsupported
	}
	return r, nil
}
