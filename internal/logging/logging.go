package logging

import (
	"log"
	"os"
)

func New() *log.Logger {
	return log.New(os.Stdout, "latsweep ", log.LstdFlags|log.LUTC)
}
