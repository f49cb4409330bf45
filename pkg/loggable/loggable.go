package loggable

import (
	"log"

	"github.com/sirupsen/logrus"
)

type LoggableOption func(*Loggable) error

// Printer is the sink for one log level.  *log.Logger satisfies it.
type Printer interface {
	Printf(format string, v ...interface{})
}

type printerFunc func(format string, v ...interface{})

func (f printerFunc) Printf(format string, v ...interface{}) {
	f(format, v...)
}

type Loggable struct {
	debugLogger Printer
	infoLogger  Printer
	warnLogger  Printer
	errorLogger Printer
}

func (c *Loggable) Debugf(msg string, args ...interface{}) {
	if c.debugLogger == nil {
		return
	}

	c.debugLogger.Printf(msg, args...)
}
func (c *Loggable) Infof(msg string, args ...interface{}) {
	if c.infoLogger == nil {
		return
	}

	c.infoLogger.Printf(msg, args...)
}
func (c *Loggable) Warnf(msg string, args ...interface{}) {
	if c.warnLogger == nil {
		return
	}

	c.warnLogger.Printf(msg, args...)
}
func (c *Loggable) Errorf(msg string, args ...interface{}) {
	if c.errorLogger == nil {
		return
	}

	c.errorLogger.Printf(msg, args...)
}

// printer converts l to a Printer, keeping a nil logger nil so that the
// level stays disabled
func printer(l *log.Logger) Printer {
	if l == nil {
		return nil
	}
	return l
}

func WithDebugLogger(l *log.Logger) LoggableOption {
	return func(c *Loggable) error {
		c.debugLogger = printer(l)
		return nil
	}
}
func WithInfoLogger(l *log.Logger) LoggableOption {
	return func(c *Loggable) error {
		c.infoLogger = printer(l)
		return nil
	}
}
func WithWarnLogger(l *log.Logger) LoggableOption {
	return func(c *Loggable) error {
		c.warnLogger = printer(l)
		return nil
	}
}
func WithErrorLogger(l *log.Logger) LoggableOption {
	return func(c *Loggable) error {
		c.errorLogger = printer(l)
		return nil
	}
}

// WithLogrus routes every level to the matching method of l.  The logrus
// level configured on l still applies.
func WithLogrus(l logrus.FieldLogger) LoggableOption {
	return func(c *Loggable) error {
		c.debugLogger = printerFunc(l.Debugf)
		c.infoLogger = printerFunc(l.Infof)
		c.warnLogger = printerFunc(l.Warnf)
		c.errorLogger = printerFunc(l.Errorf)
		return nil
	}
}
