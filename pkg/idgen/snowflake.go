package idgen

import (
	"fmt"
	"sync"
	"time"
)

// ============================================================================
// 雪花算法 ID 生成器
// ============================================================================
//
//   0 - 41位时间戳 - 10位机器ID - 12位序列号
//
// 流水号需要全局唯一且趋势递增，多实例部署时每个实例配置不同的 worker_id。
// ============================================================================

const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
	nowMillis func() int64
}

// New 创建生成器
func New(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("workerID 必须在 0-%d 之间", maxWorkerID)
	}
	return &Snowflake{
		workerID:  workerID,
		nowMillis: func() int64 { return time.Now().UnixMilli() },
	}, nil
}

var (
	defaultGenerator *Snowflake
	mu               sync.Mutex
)

// Init 初始化默认生成器，重复调用以最后一次为准
func Init(workerID int64) error {
	g, err := New(workerID)
	if err != nil {
		return err
	}
	mu.Lock()
	defaultGenerator = g
	mu.Unlock()
	return nil
}

func generator() *Snowflake {
	mu.Lock()
	defer mu.Unlock()
	if defaultGenerator == nil {
		defaultGenerator, _ = New(1)
	}
	return defaultGenerator
}

// NextID 生成下一个ID
func NextID() int64 {
	return generator().Generate()
}

func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowMillis()
	if now < s.timestamp {
		// 时钟回拨，沿用上一毫秒继续发号
		now = s.timestamp
	}

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// 序列号用完，等待下一毫秒
			for now <= s.timestamp {
				now = s.nowMillis()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

// GenerateTransactionNo 流水号：TXN + 完整雪花ID
func GenerateTransactionNo() string {
	return fmt.Sprintf("TXN%d", NextID())
}
