//go:build linux

package pci

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var sysfsRoot = "/sys/bus/pci/devices"

const (
	ioresourceIO  = 0x100
	ioresourceMem = 0x200
)

type resource struct {
	start, end, flags uint64
}

func (r resource) size() uint64 {
	if r.start == 0 && r.end == 0 {
		return 0
	}
	return r.end - r.start + 1
}

func parseResources(data []byte) ([]resource, error) {
	var out []resource

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 3 {
			return nil, errors.Errorf("malformed resource line %q", sc.Text())
		}

		var (
			r   resource
			err error
		)

		vals := []*uint64{&r.start, &r.end, &r.flags}
		for i, f := range fields {
			*vals[i], err = strconv.ParseUint(f, 0, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing resource field %q", f)
			}
		}

		out = append(out, r)
	}

	return out, sc.Err()
}

// Open reads the configuration space of the function at addr from sysfs and
// maps each of its memory BARs. I/O port BARs are left unmapped. Requires
// enough privilege to read the full configuration space and to open the
// resource files read-write.
func Open(addr Address) (*Adapter, error) {
	dir := filepath.Join(sysfsRoot, addr.String())

	cs, err := os.ReadFile(filepath.Join(dir, "config"))
	if err != nil {
		return nil, errors.Wrapf(err, "reading config space of %s", addr)
	}

	if len(cs) <= ConfigHeaderSize {
		return nil, errors.Errorf("config space of %s truncated to %d bytes (insufficient privilege?)", addr, len(cs))
	}

	rdata, err := os.ReadFile(filepath.Join(dir, "resource"))
	if err != nil {
		return nil, errors.Wrapf(err, "reading resources of %s", addr)
	}

	res, err := parseResources(rdata)
	if err != nil {
		return nil, errors.Wrapf(err, "resources of %s", addr)
	}

	var (
		bars   [MaxBARs]Memory
		mapped [][]byte
	)

	unmap := func() error {
		var first error
		for _, m := range mapped {
			if err := unix.Munmap(m); err != nil && first == nil {
				first = err
			}
		}
		mapped = nil
		return first
	}

	for i := 0; i < MaxBARs && i < len(res); i++ {
		r := res[i]
		if r.size() == 0 || r.flags&ioresourceMem == 0 {
			continue
		}

		mem, err := mapResource(filepath.Join(dir, fmt.Sprintf("resource%d", i)), r.size())
		if err != nil {
			if uerr := unmap(); uerr != nil {
				return nil, errors.Wrapf(err, "mapping bar %d of %s (unmapping earlier bars: %v)", i, addr, uerr)
			}
			return nil, errors.Wrapf(err, "mapping bar %d of %s", i, addr)
		}

		mapped = append(mapped, mem)
		bars[i] = RAM(mem)
	}

	a := NewAdapter(addr, ConfigSpace(cs), bars)
	a.close = unmap

	return a, nil
}

func mapResource(path string, size uint64) ([]byte, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer unix.Close(fd)

	mem, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap %s", path)
	}

	return mem, nil
}
