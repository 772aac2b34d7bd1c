package main

import (
	"github.com/go-clog/clog"
)

func setupLogging(logFile string) (err error) {
	err = clog.New(clog.CONSOLE, clog.ConsoleConfig{
		Level:      clog.TRACE, // record all logs
		BufferSize: 100,        // log async, 0 is sync
	})
	if err != nil {
		println("Whoops, cannot initialize logging to console:", err.Error())
		return err
	}

	if logFile != "" {
		err = clog.New(clog.FILE, clog.FileConfig{
			Level:      clog.TRACE,
			BufferSize: 100,
			Filename:   logFile,
			FileRotationConfig: clog.FileRotationConfig{
				Rotate:   true,
				Daily:    true,
				MaxSize:  1 << 28,
				MaxLines: 1000000,
				MaxDays:  7,
			},
		})
		if err != nil {
			clog.Error(2, "Cannot initialize log to file: %s", err.Error())
		}
	}
	return err
}
