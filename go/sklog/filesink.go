package sklog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// maxFileSinkBytes is the size budget at which the current day's log file
// is truncated and restarted, a simplified stand-in for real rotation.
const maxFileSinkBytes = 50 * 1024 * 1024

var fileSink struct {
	mtx  sync.Mutex
	dir  string
	file *os.File
	day  string
	size int64
}

// SetLogDir points sklog at a directory to additionally mirror every log
// line into, as "<dir>/ingestd.<date>.log". Safe to call once at process
// start; a zero value disables the file sink (the default).
func SetLogDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	fileSink.mtx.Lock()
	defer fileSink.mtx.Unlock()
	fileSink.dir = dir
	return nil
}

func writeFileSink(line string) {
	fileSink.mtx.Lock()
	defer fileSink.mtx.Unlock()
	if fileSink.dir == "" {
		return
	}

	today := time.Now().UTC().Format("2006-01-02")
	if fileSink.file == nil || fileSink.day != today || fileSink.size >= maxFileSinkBytes {
		if fileSink.file != nil {
			_ = fileSink.file.Close()
		}
		path := filepath.Join(fileSink.dir, fmt.Sprintf("ingestd.%s.log", today))
		flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
		if fileSink.size >= maxFileSinkBytes {
			flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
		}
		f, err := os.OpenFile(path, flags, 0644)
		if err != nil {
			return
		}
		fileSink.file = f
		fileSink.day = today
		fileSink.size = 0
	}

	n, err := fileSink.file.WriteString(line + "\n")
	if err == nil {
		fileSink.size += int64(n)
	}
}
