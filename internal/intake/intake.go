package intake

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// 每辆车当天 branch_no = 1 的第一张图
const firstImagesQuery = `
	SELECT DISTINCT ON (inspresultdata_cd)
		id,
		inspresultdata_cd,
		save_file_name,
		upload_timestamp
	FROM upload_files
	WHERE upload_timestamp >= $1
	  AND upload_timestamp < $2
	  AND branch_no = 1
	  AND delete_flg = 0
	  AND save_file_name IS NOT NULL
	  AND save_file_name <> ''
	ORDER BY inspresultdata_cd, upload_timestamp ASC`

// Upload 一条上传记录
type Upload struct {
	ID         int64     `json:"id"`
	Vehicle    string    `json:"vehicle"` // inspresultdata_cd
	FileName   string    `json:"file_name"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Key 存储中的 key（去掉前导 "/"）
func (u Upload) Key() string {
	return strings.TrimPrefix(u.FileName, "/")
}

// Querier *sql.DB 与 *sql.Tx 都实现了它
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Open 通过 pgx 驱动连接数据库
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库连接失败: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}
	return db, nil
}

// DayRange day 所在时区的 [当天 0 点, 次日 0 点)
func DayRange(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return start, start.AddDate(0, 0, 1)
}

// FirstImages 查询 day 当天每辆车的第一张图
func FirstImages(ctx context.Context, db Querier, day time.Time) ([]Upload, error) {
	start, end := DayRange(day)
	rows, err := db.QueryContext(ctx, firstImagesQuery, start, end)
	if err != nil {
		return nil, fmt.Errorf("查询上传记录失败: %w", err)
	}
	defer rows.Close()

	var uploads []Upload
	for rows.Next() {
		var u Upload
		if err = rows.Scan(&u.ID, &u.Vehicle, &u.FileName, &u.UploadedAt); err != nil {
			return nil, fmt.Errorf("读取上传记录失败: %w", err)
		}
		uploads = append(uploads, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("读取上传记录失败: %w", err)
	}
	return uploads, nil
}
