package share

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultDir = "shared_links"

// FileSink 把链接逐行追加到文件，文件名在创建时确定，一次任务的链接都写入同一个文件
type FileSink struct {
	mu   sync.Mutex
	path string
}

func NewFileSink(dir string) *FileSink {
	return newFileSinkAt(dir, time.Now())
}

func newFileSinkAt(dir string, now time.Time) *FileSink {
	if dir == "" {
		dir = DefaultDir
	}
	// 带毫秒，同一秒内创建的两个 sink 不会写到同一个文件
	name := fmt.Sprintf("links-%s%03d.txt", now.Format("20060102150405"), now.Nanosecond()/int(time.Millisecond))
	return &FileSink{path: filepath.Join(dir, name)}
}

// Path 输出文件路径
func (s *FileSink) Path() string {
	return s.path
}

func (s *FileSink) Share(ctx context.Context, link string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		logrus.WithError(err).Errorf("创建目录失败: %s", filepath.Dir(s.path))
		return false
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		logrus.WithError(err).Errorf("打开文件失败: %s", s.path)
		return false
	}
	defer f.Close()

	if _, err := f.WriteString(link + "\n"); err != nil {
		logrus.WithError(err).Errorf("写入链接失败: %s", s.path)
		return false
	}

	logrus.Infof("链接已保存到文件: %s", s.path)
	return true
}
