package dns

import (
	"fmt"
	"strconv"
	"strings"
)

// parseInstanceName parses an instance-specific DNS name.
//
// Supported formats:
//   - db-1      -> serviceName="db", instance=1
//   - db-2      -> serviceName="db", instance=2
//   - web-api-3 -> serviceName="web-api", instance=3
//
// Instance numbers are 1-indexed by join order, oldest first.
func parseInstanceName(name string) (serviceName string, instanceNum int, err error) {
	lastHyphen := strings.LastIndex(name, "-")
	if lastHyphen == -1 {
		return "", 0, fmt.Errorf("not an instance name (no hyphen): %s", name)
	}

	num, err := strconv.Atoi(name[lastHyphen+1:])
	if err != nil {
		return "", 0, fmt.Errorf("not an instance name (invalid number): %s", name)
	}
	if num < 1 {
		return "", 0, fmt.Errorf("instance number must be >= 1: %s", name)
	}

	return name[:lastHyphen], num, nil
}
