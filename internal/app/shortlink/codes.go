package shortlink

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"sqidlink.local/internal/platform/metrics"
	"sqidlink.local/internal/platform/trace"
	"sqidlink.local/sqids"
)

type CoderOptions struct {
	Alphabet  string // 空串用 sqids.DefaultAlphabet
	MinLength uint8
	Blocklist []string
}

// Coder 把自增 ID 编成短码。底层 codec 不可变，可并发使用。
type Coder struct {
	sq *sqids.Sqids
}

func NewCoder(opts CoderOptions) (*Coder, error) {
	// 保留路径也进屏蔽词，生成的短码不会占用固定路由
	blocklist := slices.Concat(opts.Blocklist, reservedWords())
	sq, err := sqids.New(sqids.Options{
		Alphabet:  opts.Alphabet,
		MinLength: opts.MinLength,
		Blocklist: blocklist,
	})
	if err != nil {
		return nil, fmt.Errorf("init coder: %w", err)
	}
	return &Coder{sq: sq}, nil
}

// LoadBlocklist 每行一个词，忽略空行和 # 开头的注释
func LoadBlocklist(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open blocklist: %w", err)
	}
	defer f.Close()

	var words []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read blocklist %s: %w", path, err)
	}
	return words, nil
}

func (c *Coder) Encode(id uint64) (string, error) {
	return c.EncodeNumbers([]uint64{id})
}

// Mint 是带 trace 的 Encode，给 repo 建短链时用
func (c *Coder) Mint(ctx context.Context, id uint64) (string, error) {
	_, span := trace.Tracer().Start(ctx, "shortlink.mint_code")
	defer span.End()
	span.SetAttributes(attribute.Int64("shortlink.id", int64(id)))

	code, err := c.Encode(id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("shortlink.code", code))
	return code, nil
}

// Decode 只认本服务签发的规范短码，且必须恰好解出一个数
func (c *Coder) Decode(code string) (uint64, error) {
	numbers := c.DecodeNumbers(code)
	if len(numbers) != 1 || !c.sq.Canonical(code) {
		return 0, ErrInvalidCode
	}
	return numbers[0], nil
}

func (c *Coder) EncodeNumbers(numbers []uint64) (string, error) {
	id, rejected, err := c.sq.EncodeAttempts(numbers)
	metrics.SqidsBlocklistRetries.Observe(float64(rejected))
	if err != nil {
		metrics.SqidsEncodeTotal.WithLabelValues("exhausted").Inc()
		return "", err
	}
	metrics.SqidsEncodeTotal.WithLabelValues("ok").Inc()
	return id, nil
}

// DecodeNumbers 非法输入返回空切片
func (c *Coder) DecodeNumbers(id string) []uint64 {
	numbers := c.sq.Decode(id)
	if len(numbers) == 0 {
		metrics.SqidsDecodeTotal.WithLabelValues("invalid").Inc()
	} else {
		metrics.SqidsDecodeTotal.WithLabelValues("ok").Inc()
	}
	return numbers
}

func (c *Coder) Canonical(id string) bool {
	return c.sq.Canonical(id)
}
