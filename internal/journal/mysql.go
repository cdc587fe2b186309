package journal

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	xerrors "Aegis-Engine/internal/errors"
)

// MySQLStore 把执行流水落到 MySQL，供外部面板查询历史。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 连接 MySQL 并确保流水表存在。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS agent_executions (
        id VARCHAR(64) PRIMARY KEY,
        agent_id BIGINT UNSIGNED NOT NULL,
        strategy VARCHAR(32) NOT NULL,
        executed TINYINT(1) NOT NULL DEFAULT 0,
        reason VARCHAR(255) DEFAULT '',
        tx_hash VARCHAR(66) DEFAULT '',
        pnl_wei VARCHAR(80) NOT NULL DEFAULT '0',
        capital_wei VARCHAR(80) NOT NULL DEFAULT '0',
        last_error TEXT,
        recorded_at BIGINT NOT NULL,
        INDEX idx_exec_agent (agent_id),
        INDEX idx_exec_recorded (recorded_at)
)`

	if _, err := s.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 agent_executions 表失败")
	}
	return nil
}

// Append 插入一条流水。
func (s *MySQLStore) Append(ctx context.Context, record Record) error {
	const stmt = `INSERT INTO agent_executions
        (id, agent_id, strategy, executed, reason, tx_hash, pnl_wei, capital_wei, last_error, recorded_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, stmt,
		record.ID,
		record.AgentID,
		record.Strategy,
		record.Executed,
		record.Reason,
		record.TxHash,
		record.PnLWei,
		record.CapitalWei,
		record.Error,
		record.RecordedAt.Unix(),
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入执行流水失败")
	}
	return nil
}

// Recent 按时间倒序读取最近 limit 条流水。
func (s *MySQLStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT id, agent_id, strategy, executed, reason, tx_hash,
        pnl_wei, capital_wei, last_error, recorded_at
        FROM agent_executions ORDER BY recorded_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询执行流水失败")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var record Record
		var lastError sql.NullString
		var recordedAt int64
		if err := rows.Scan(
			&record.ID,
			&record.AgentID,
			&record.Strategy,
			&record.Executed,
			&record.Reason,
			&record.TxHash,
			&record.PnLWei,
			&record.CapitalWei,
			&lastError,
			&recordedAt,
		); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析执行流水失败")
		}
		record.Error = lastError.String
		record.RecordedAt = time.Unix(recordedAt, 0)
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历执行流水失败")
	}
	return out, nil
}

// Close 关闭数据库连接。
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
