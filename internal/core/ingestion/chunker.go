package ingestion

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// DefaultChunkSize はチャンクあたりのデフォルト最大トークン数
	DefaultChunkSize = 500
	// DefaultOverlap は隣接チャンク間のデフォルトオーバーラップトークン数
	DefaultOverlap = 50
	// DefaultMinChunkChars はこの文字数未満のチャンクを破棄する閾値
	DefaultMinChunkChars = 10
)

// Chunker はドキュメントテキストをトークン数上限つきのチャンクに分割します
type Chunker struct {
	encoder   *tiktoken.Tiktoken
	chunkSize int
	overlap   int
	minChars  int
}

// ChunkerOption は Chunker のオプション設定
type ChunkerOption func(*Chunker)

// WithChunkSize はチャンクあたりの最大トークン数を上書きする
func WithChunkSize(size int) ChunkerOption {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap はオーバーラップトークン数を上書きする
func WithOverlap(overlap int) ChunkerOption {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// WithMinChunkChars は破棄閾値の文字数を上書きする
func WithMinChunkChars(chars int) ChunkerOption {
	return func(c *Chunker) {
		if chars >= 0 {
			c.minChars = chars
		}
	}
}

// NewChunker は新しいChunkerを作成します
func NewChunker(opts ...ChunkerOption) (*Chunker, error) {
	// cl100k_baseエンコーダを使用（text-embedding-3-smallと互換）
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoder: %w", err)
	}

	c := &Chunker{
		encoder:   encoder,
		chunkSize: DefaultChunkSize,
		overlap:   DefaultOverlap,
		minChars:  DefaultMinChunkChars,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.overlap >= c.chunkSize {
		return nil, fmt.Errorf("overlap (%d) must be smaller than chunk size (%d)", c.overlap, c.chunkSize)
	}

	return c, nil
}

// Split はテキストをチャンク化します。
// トークン列全体を chunkSize - overlap トークンごとに開始位置をずらしながら、
// 各チャンクが最大 chunkSize トークンを持つように切り出す。末尾のチャンクは
// chunkSize より短くてよい。トークン境界はデコードで可読テキストに復元できる。
// 空・空白のみの入力はエラーではなくゼロチャンクを返す。
func (c *Chunker) Split(text string) []*Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	tokens := c.encoder.Encode(text, nil, nil)
	if len(tokens) == 0 {
		return nil
	}

	step := c.chunkSize - c.overlap
	var chunks []*Chunk
	seq := 0

	for start := 0; start < len(tokens); start += step {
		end := start + c.chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}

		content := c.encoder.Decode(tokens[start:end])

		// バイトレベルBPEではチャンク境界がマルチバイト文字の途中に
		// 落ちることがあり、その場合デコード結果は不正なUTF-8になる。
		// 端の不完全なバイト列を除去してから保存する
		content = strings.ToValidUTF8(content, "")

		// 短すぎるチャンクはインデックスを汚すだけなので破棄する
		if len(strings.TrimSpace(content)) < c.minChars {
			continue
		}

		chunks = append(chunks, &Chunk{
			Sequence:   seq,
			Content:    content,
			TokenCount: end - start,
		})
		seq++
	}

	return chunks
}

// CountTokens はテキストのトークン数をカウントします
func (c *Chunker) CountTokens(text string) int {
	return len(c.encoder.Encode(text, nil, nil))
}

// ChunkSize はチャンクあたりの最大トークン数を返します
func (c *Chunker) ChunkSize() int {
	return c.chunkSize
}

// Overlap はオーバーラップトークン数を返します
func (c *Chunker) Overlap() int {
	return c.overlap
}
