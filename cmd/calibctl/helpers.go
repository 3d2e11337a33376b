package main

import (
	"github.com/BearBump/CalibBox/config"
	"github.com/fatih/color"
)

type configLoader func() (*config.Config, error)

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

func ok(format string, a ...interface{}) string {
	return color.New(color.Bold, color.FgGreen).Sprint("✔ ") + color.New(color.Bold).Sprintf(format, a...)
}
