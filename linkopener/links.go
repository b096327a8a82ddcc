package linkopener

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrFileNotFound = errors.New("链接文件不存在")
	ErrInvalidName  = errors.New("非法的文件名")
	ErrNoLinks      = errors.New("文件中没有找到任何链接")
)

// ReadLinks 读取文件中的链接，去掉首尾空白并跳过空行
func ReadLinks(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrFileNotFound, path)
		}
		return nil, errors.Wrapf(err, "打开文件失败: %s", path)
	}
	defer f.Close()

	var links []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			links = append(links, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "读取文件失败: %s", path)
	}
	return links, nil
}

// ResolveLinkFile 把文件名限定在 dir 目录下，拒绝目录穿越
func ResolveLinkFile(dir, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", errors.Wrapf(ErrInvalidName, "%q", name)
	}
	if strings.ContainsAny(name, `/\`) {
		return "", errors.Wrapf(ErrInvalidName, "%q", name)
	}
	return filepath.Join(dir, name), nil
}

// ListLinkFiles 列出 dir 下 links-*.txt，文件名倒序（即新的在前）。
// 目录不存在时返回空列表。
func ListLinkFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, errors.Wrapf(err, "读取目录失败: %s", dir)
	}

	files := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "links-") || !strings.HasSuffix(name, ".txt") {
			continue
		}
		files = append(files, name)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	return files, nil
}
