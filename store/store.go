package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	image_path  TEXT NOT NULL DEFAULT '',
	links       TEXT NOT NULL DEFAULT '[]',
	link_file   TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
`

// Record 一次采集任务的历史记录
type Record struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	ImagePath  string    `json:"image_path,omitempty"`
	Links      []string  `json:"links"`
	LinkFile   string    `json:"link_file,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Store 基于 SQLite 的任务历史
type Store struct {
	db *sql.DB
}

// Open 打开（必要时创建）数据库文件
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "创建数据库目录失败")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "打开数据库失败")
	}
	// 单写者，避免 database is locked
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "设置 %s 失败", pragma)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "初始化表结构失败")
	}

	logrus.WithField("path", path).Info("任务历史数据库已打开")
	return &Store{db: db}, nil
}

// SaveRun 写入或更新一条记录
func (s *Store) SaveRun(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return errors.New("记录缺少 id")
	}
	links := rec.Links
	if links == nil {
		links = []string{}
	}
	data, err := json.Marshal(links)
	if err != nil {
		return errors.Wrap(err, "序列化链接失败")
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO runs (id, status, image_path, links, link_file, error, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	status = excluded.status,
	image_path = excluded.image_path,
	links = excluded.links,
	link_file = excluded.link_file,
	error = excluded.error,
	started_at = excluded.started_at,
	finished_at = excluded.finished_at`,
		rec.ID, rec.Status, rec.ImagePath, string(data), rec.LinkFile, rec.Error,
		toMillis(rec.StartedAt), toMillis(rec.FinishedAt),
	)
	if err != nil {
		return errors.Wrapf(err, "保存任务记录失败: %s", rec.ID)
	}
	return nil
}

// ListRuns 按开始时间倒序返回最近的 limit 条记录，limit<=0 时默认 20
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, status, image_path, links, link_file, error, started_at, finished_at
FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "查询任务记录失败")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec                 Record
			links               string
			started, finishedMs int64
		)
		if err := rows.Scan(&rec.ID, &rec.Status, &rec.ImagePath, &links, &rec.LinkFile, &rec.Error, &started, &finishedMs); err != nil {
			return nil, errors.Wrap(err, "读取任务记录失败")
		}
		if err := json.Unmarshal([]byte(links), &rec.Links); err != nil {
			logrus.WithError(err).Warnf("任务 %s 的链接数据损坏", rec.ID)
		}
		rec.StartedAt = fromMillis(started)
		rec.FinishedAt = fromMillis(finishedMs)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
