//go:build linux
// +build linux

package raspberry

import "github.com/pkg/errors"

func openDriver(driver string, o Options) (LineIO, error) {
	switch driver {
	case "gpiod", "":
		return OpenChip(o)
	case "gpiomem":
		return OpenMem(o)
	default:
		return nil, errors.Wrapf(ErrInvalidParam, "gpio driver %q", driver)
	}
}
