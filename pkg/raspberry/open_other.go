//go:build !linux
// +build !linux

package raspberry

import "github.com/pkg/errors"

func openDriver(driver string, _ Options) (LineIO, error) {
	switch driver {
	case "gpiod", "gpiomem", "":
		return nil, errors.Wrapf(ErrUnsupported, "gpio driver %q", driver)
	default:
		return nil, errors.Wrapf(ErrInvalidParam, "gpio driver %q", driver)
	}
}
