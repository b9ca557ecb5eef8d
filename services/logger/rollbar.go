package logsvc

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/matokeo/core"
	"github.com/trezcool/matokeo/core/user"
)

// RollbarLogger prints to a std logger and reports to Rollbar when enabled.
type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std}
}

// Enable toggles reporting to Rollbar; reporting is pointless without a token.
func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled && rollbar.Token() != "")
}

// prepare builds the rollbar args from msg and args.
// Every LogFields (or plain map) among args is merged into one extras map, since rollbar keeps only one.
// A user.User among args is reported as the person concerned and adds their roles to the extras.
func (l RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	var usrSet bool
	extras := make(map[string]interface{})
	newArgs := make([]interface{}, 0, len(args)+2)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		switch arg := arg.(type) {
		case user.User:
			if !usrSet && arg.ID != "" { // only set one User
				rollbar.SetPerson(arg.ID, arg.Username, arg.Email)
				extras["user_roles"] = arg.Roles
				usrSet = true
			}
		case core.LogFields:
			mergeExtras(extras, arg)
		case map[string]interface{}:
			mergeExtras(extras, arg)
		case error:
			mergeExtras(extras, core.FieldsOf(arg))
			newArgs = append(newArgs, arg)
		default:
			newArgs = append(newArgs, arg)
		}
	}
	if !usrSet {
		rollbar.ClearPerson()
	}
	if len(extras) > 0 {
		newArgs = append(newArgs, extras)
	}
	return newArgs
}

func mergeExtras(dst, src map[string]interface{}) {
	for k, v := range src {
		if _, set := dst[k]; !set {
			dst[k] = v
		}
	}
}

// print writes msg, then the extras as sorted key=value pairs, then each error with its stack.
func (l RollbarLogger) print(msg string, args []interface{}) {
	extras := make(map[string]interface{})
	for _, arg := range args {
		switch arg := arg.(type) {
		case core.LogFields:
			mergeExtras(extras, arg)
		case error:
			mergeExtras(extras, core.FieldsOf(arg))
		}
	}
	if len(extras) > 0 {
		keys := make([]string, 0, len(extras))
		for k := range extras {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%s=%v", k, extras[k]))
		}
		msg += " [" + strings.Join(pairs, " ") + "]"
	}
	l.std.Println(msg)
	for _, arg := range args {
		if err, ok := arg.(error); ok {
			l.std.Printf("%+v\n", err)
		}
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rollbar.Debug(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rollbar.Critical(l.prepare(msg, args)...)
	rollbar.Wait()
	l.print(msg, args)
	l.std.Fatal(msg)
}
