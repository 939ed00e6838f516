package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Status 单张图像的处理状态
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusVerified   Status = "verified"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// 允许的状态迁移，done 以外的状态都可以重新进入 processing（中断的运行从备份重做）
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusError},
	StatusProcessing: {StatusProcessing, StatusVerified, StatusDone, StatusError},
	StatusVerified:   {StatusProcessing, StatusDone, StatusError},
	StatusError:      {StatusProcessing},
	StatusDone:       {},
}

// ErrTransition 非法的状态迁移
var ErrTransition = errors.New("非法的状态迁移")

// Transition 一次状态变化
type Transition struct {
	Status Status    `json:"status"`
	At     time.Time `json:"at"`
	Note   string    `json:"note,omitempty"`
}

// Entry 单张图像的记录
type Entry struct {
	ID         string       `json:"id"`
	Status     Status       `json:"status"`
	Detections int          `json:"detections"`
	UpdatedAt  time.Time    `json:"updated_at"`
	History    []Transition `json:"history"`
}

// Record 一天的记录文件内容
type Record struct {
	Date    string            `json:"date"`
	Runs    []string          `json:"runs,omitempty"`
	Entries map[string]*Entry `json:"entries"`
}

// Tracker 按天保存的处理记录，每次变更立即写盘
type Tracker struct {
	mu   sync.Mutex
	path string
	rec  Record
	now  func() time.Time
}

// FileName 某天的记录文件名
func FileName(day time.Time) string {
	return fmt.Sprintf("tracker_%s.json", day.Format(time.DateOnly))
}

// Open 打开 dir 下 day 对应的记录，不存在时新建
func Open(dir string, day time.Time) (*Tracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建记录目录失败: %w", err)
	}
	t := &Tracker{
		path: filepath.Join(dir, FileName(day)),
		rec:  Record{Date: day.Format(time.DateOnly), Entries: map[string]*Entry{}},
		now:  time.Now,
	}

	data, err := os.ReadFile(t.path)
	switch {
	case os.IsNotExist(err):
		return t, nil
	case err != nil:
		return nil, fmt.Errorf("读取记录失败: %w", err)
	}
	if err = json.Unmarshal(data, &t.rec); err != nil {
		return nil, fmt.Errorf("解析记录失败 %s: %w", t.path, err)
	}
	if t.rec.Entries == nil {
		t.rec.Entries = map[string]*Entry{}
	}
	return t, nil
}

// Path 记录文件路径
func (t *Tracker) Path() string {
	return t.path
}

// StartRun 记录一次批处理运行
func (t *Tracker) StartRun(runID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rec.Runs = append(t.rec.Runs, runID)
	return t.save()
}

// Add 登记为 pending，已存在时不变
func (t *Tracker) Add(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rec.Entries[id]; ok {
		return nil
	}
	now := t.now()
	t.rec.Entries[id] = &Entry{
		ID:        id,
		Status:    StatusPending,
		UpdatedAt: now,
		History:   []Transition{{Status: StatusPending, At: now}},
	}
	return t.save()
}

// Set 迁移状态并追加带时间戳的历史，未登记的 id 视为 pending
func (t *Tracker) Set(id string, status Status, note string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.rec.Entries[id]
	if !ok {
		e = &Entry{ID: id, Status: StatusPending}
		t.rec.Entries[id] = e
	}
	if !allowed(e.Status, status) {
		return fmt.Errorf("%w: %s %s -> %s", ErrTransition, id, e.Status, status)
	}

	now := t.now()
	e.Status = status
	e.UpdatedAt = now
	e.History = append(e.History, Transition{Status: status, At: now, Note: note})
	return t.save()
}

// SetDetections 记录检测数量
func (t *Tracker) SetDetections(id string, n int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.rec.Entries[id]
	if !ok {
		return fmt.Errorf("记录不存在: %s", id)
	}
	e.Detections = n
	return t.save()
}

// Get 返回记录副本
func (t *Tracker) Get(id string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.rec.Entries[id]
	if !ok {
		return Entry{}, false
	}
	cp := *e
	cp.History = append([]Transition(nil), e.History...)
	return cp, true
}

// Done 是否已处理完成，批处理据此跳过
func (t *Tracker) Done(id string) bool {
	e, ok := t.Get(id)
	return ok && e.Status == StatusDone
}

// IDs 按 id 排序
func (t *Tracker) IDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.rec.Entries))
	for id := range t.rec.Entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Summary 各状态计数
func (t *Tracker) Summary() map[Status]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[Status]int)
	for _, e := range t.rec.Entries {
		out[e.Status]++
	}
	return out
}

func allowed(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// save 先写临时文件再改名，调用方持有锁
func (t *Tracker) save() error {
	data, err := json.MarshalIndent(t.rec, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化记录失败: %w", err)
	}
	tmp := t.path + ".tmp"
	if err = os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("写入记录失败: %w", err)
	}
	if err = os.Rename(tmp, t.path); err != nil {
		return fmt.Errorf("写入记录失败: %w", err)
	}
	return nil
}
