// Package config loads YAML configuration files for the command line. Keys
// are flag names with dashes replaced by underscores; a key nested under a
// command name applies to that command only.
//
//	db: /data/wiki.sqlite
//	collection: wiki_de
//	pool_size: 1MiB
//	exportfs:
//	  dir: /tmp/out
package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables read by the loader.
const EnvPrefix = "TEXTIMAGER"

// Key returns the configuration key of a flag name.
func Key(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}

// Load reads YAML from r into a fresh viper instance. Environment variables
// named TEXTIMAGER_<KEY> override file values.
func Load(r io.Reader) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return v, nil
}

// Loader is a kong.ConfigurationLoader backed by viper.
func Loader(r io.Reader) (kong.Resolver, error) {
	v, err := Load(r)
	if err != nil {
		return nil, err
	}
	return Resolver(v), nil
}

// Resolver resolves flag values from v. The most specific command section
// wins over the top level.
func Resolver(v *viper.Viper) kong.Resolver {
	return kong.ResolverFunc(func(kctx *kong.Context, parent *kong.Path, flag *kong.Flag) (any, error) {
		for _, key := range candidates(kctx, flag.Name) {
			if !v.IsSet(key) {
				continue
			}
			return value(v, key), nil
		}
		return nil, nil
	})
}

// candidates lists the keys for a flag, most specific first.
func candidates(kctx *kong.Context, name string) []string {
	key := Key(name)
	var cmds []string
	if kctx != nil {
		if sel := kctx.Selected(); sel != nil {
			for n := sel; n != nil && n.Type == kong.CommandNode; n = n.Parent {
				cmds = append([]string{Key(n.Name)}, cmds...)
			}
		}
	}
	keys := make([]string, 0, len(cmds)+1)
	for i := len(cmds); i > 0; i-- {
		keys = append(keys, strings.Join(cmds[:i], ".")+"."+key)
	}
	return append(keys, key)
}

func value(v *viper.Viper, key string) string {
	if _, ok := v.Get(key).([]any); ok {
		return strings.Join(v.GetStringSlice(key), ",")
	}
	return v.GetString(key)
}
