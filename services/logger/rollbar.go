package logsvc

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/triolingo/backend/core"
)

// RollbarLogger reports to Rollbar and mirrors every entry on a std logger.
// Extras maps passed to one call are merged, and the request user's uid joins them.
type RollbarLogger struct {
	std    *log.Logger
	extras map[string]interface{}
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std, extras: map[string]interface{}{"app": conf.AppName}}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// entry is one log call split into what rollbar and the std logger need.
type entry struct {
	msg    string
	errs   []error
	extras map[string]interface{}
	person *core.Person
	other  []interface{}
}

// expected fmt: msg | error, map[string]interface{}, core.Person
func (l RollbarLogger) parse(msg string, args []interface{}) entry {
	e := entry{msg: msg, extras: make(map[string]interface{}, len(l.extras)+2)}
	for k, v := range l.extras {
		e.extras[k] = v
	}
	for _, arg := range args {
		switch a := arg.(type) {
		case core.Person:
			if e.person == nil { // only the first one
				p := a
				e.person = &p
				e.extras["uid"] = p.ID
			}
		case error:
			e.errs = append(e.errs, a)
		case map[string]interface{}:
			for k, v := range a {
				e.extras[k] = v
			}
		default:
			e.other = append(e.other, a)
		}
	}
	return e
}

// rollbarArgs sets the rollbar person of `e` and returns the args of a rollbar log call.
func (e entry) rollbarArgs() []interface{} {
	if e.person != nil {
		rollbar.SetPerson(e.person.ID, e.person.Name, e.person.Email)
	} else {
		rollbar.ClearPerson()
	}

	args := make([]interface{}, 0, len(e.errs)+len(e.other)+2)
	args = append(args, e.msg)
	for _, err := range e.errs {
		args = append(args, err)
	}
	args = append(args, e.other...)
	return append(args, e.extras)
}

// String formats `e` on one line: msg, errors, then sorted key=value extras.
func (e entry) String() string {
	var b strings.Builder
	b.WriteString(e.msg)
	for _, err := range e.errs {
		fmt.Fprintf(&b, " error=%q", err.Error())
	}
	for _, o := range e.other {
		fmt.Fprintf(&b, " %+v", o)
	}
	keys := make([]string, 0, len(e.extras))
	for k := range e.extras {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.extras[k])
	}
	return b.String()
}

func (l RollbarLogger) write(level, msg string, args []interface{}) entry {
	e := l.parse(msg, args)
	l.std.Printf("[%s] %s", level, e)
	return e
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rollbar.Debug(l.write(rollbar.DEBUG, msg, args).rollbarArgs()...)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.write(rollbar.INFO, msg, args).rollbarArgs()...)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.write(rollbar.WARN, msg, args).rollbarArgs()...)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.write(rollbar.ERR, msg, args).rollbarArgs()...)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rollbar.Critical(l.write(rollbar.CRIT, msg, args).rollbarArgs()...)
	rollbar.Wait()
	l.std.Fatal(msg)
}
