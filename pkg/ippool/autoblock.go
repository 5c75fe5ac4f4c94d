package ippool

import (
	"strings"

	"github.com/kuberdock/kuberdock/internal/apierr"
)

// ParseAutoblock expands a comma-separated, order-independent mix of
// single IPs ("10.0.0.1") and inclusive ranges ("10.0.0.1-10.0.0.32")
// into the set of host integers they name.
func ParseAutoblock(data string) (map[uint32]struct{}, error) {
	data = strings.ReplaceAll(data, " ", "")
	if data == "" {
		return map[uint32]struct{}{}, nil
	}

	out := make(map[uint32]struct{})
	for _, item := range strings.Split(data, ",") {
		if ip, err := ParseIP(item); err == nil {
			out[ip] = struct{}{}
			continue
		}

		parts := strings.SplitN(item, "-", 2)
		if len(parts) != 2 {
			return nil, autoblockFormatErr()
		}
		first, err1 := ParseIP(parts[0])
		last, err2 := ParseIP(parts[1])
		if err1 != nil || err2 != nil || last < first {
			return nil, autoblockFormatErr()
		}
		for ip := first; ip <= last; ip++ {
			out[ip] = struct{}{}
		}
	}
	return out, nil
}

func autoblockFormatErr() error {
	return apierr.New(apierr.KindValidationError,
		"exclude IPs are expected to be in the form of "+
			"10.0.0.1,10.0.0.4 or 10.1.0.10-10.1.1.54 or both comma-separated")
}
