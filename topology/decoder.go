package topology

import (
	"errors"
	"fmt"

	"github.com/thustorage/ramssd/config"
	"github.com/thustorage/ramssd/simevent"
)

// ErrPageOutOfRange is returned by Decode when logicalPage exceeds the
// device's addressable capacity.
var ErrPageOutOfRange = errors.New("topology: logical page out of range")

// Decode maps a linear logical page number to a fully-valid Address. It is
// a pure function of cfg and logicalPage — stateless and safe to call
// concurrently from any number of goroutines.
func Decode(cfg config.Config, logicalPage uint64) (simevent.Address, error) {
	total := cfg.TotalPages()
	if total == 0 || logicalPage >= total {
		return simevent.Address{}, fmt.Errorf("%w: page %d, capacity %d", ErrPageOutOfRange, logicalPage, total)
	}

	l := logicalPage
	page := uint32(l % uint64(cfg.BlockSize))
	l /= uint64(cfg.BlockSize)
	block := uint32(l % uint64(cfg.PlaneSize))
	l /= uint64(cfg.PlaneSize)
	plane := uint32(l % uint64(cfg.DieSize))
	l /= uint64(cfg.DieSize)
	die := uint32(l % uint64(cfg.PackageSize))
	l /= uint64(cfg.PackageSize)
	pkg := uint32(l % uint64(cfg.SSDSize))

	return simevent.Address{
		Package:  pkg,
		Die:      die,
		Plane:    plane,
		Block:    block,
		Page:     page,
		Validity: simevent.PageLevel,
	}, nil
}
