package quarry

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Reserved parameter keys consumed by the framework layer. They are stripped
// before the remaining options are forwarded to the driver.
var reservedParams = map[string]bool{
	"connection_name": true,
	"fetch_inserted":  true,
	"db":              true,
	"autocommit":      true,
}

// Config holds the connection parameters for one client.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	// Extras are backend specific options passed through to the driver.
	Extras map[string]string
}

// ParseConfig builds a Config from a loose parameter map, coercing the port
// to an integer and stripping framework reserved keys. Unknown keys land in
// Extras untouched.
func ParseConfig(params map[string]interface{}) (Config, error) {
	cfg := Config{Extras: map[string]string{}}
	for key, value := range params {
		if reservedParams[key] {
			continue
		}
		switch key {
		case "host":
			cfg.Host = fmt.Sprint(value)
		case "user":
			cfg.User = fmt.Sprint(value)
		case "password":
			cfg.Password = fmt.Sprint(value)
		case "database":
			cfg.Database = fmt.Sprint(value)
		case "port":
			port, err := coercePort(value)
			if err != nil {
				return Config{}, err
			}
			cfg.Port = port
		default:
			cfg.Extras[key] = fmt.Sprint(value)
		}
	}
	return cfg, nil
}

func coercePort(value interface{}) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		port, err := strconv.Atoi(v)
		if err != nil {
			return 0, NewError(KindOperational, "invalid port %q", v)
		}
		return port, nil
	}
	return 0, NewError(KindOperational, "invalid port %v", value)
}

// SafeString renders the connection parameters for diagnostics. The password
// is never included.
func (c Config) SafeString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "host=%s port=%d user=%s database=%s", c.Host, c.Port, c.User, c.Database)
	if len(c.Extras) > 0 {
		keys := make([]string, 0, len(c.Extras))
		for k := range c.Extras {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%s", k, c.Extras[k])
		}
	}
	return b.String()
}
