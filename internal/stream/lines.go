// Package stream 把上游字节流切成完整的行
package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
)

// Splitter 按换行切分任意边界的字节块,最后一段不完整的行保留到下一块。
// 多字节 UTF-8 字符被切开时同样保留,不会出现半个字符。
type Splitter struct {
	carry []byte
}

// Feed 追加一块数据,返回其中已完整的行(不含换行符和行尾的 \r)
func (s *Splitter) Feed(chunk []byte) []string {
	s.carry = append(s.carry, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(s.carry, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, trimCR(string(s.carry[:i])))
		s.carry = s.carry[i+1:]
	}
	// 避免底层数组无限增长
	if len(s.carry) == 0 {
		s.carry = nil
	} else {
		s.carry = append([]byte(nil), s.carry...)
	}
	return lines
}

// Flush 返回剩余的不完整行,流结束时调用
func (s *Splitter) Flush() (string, bool) {
	if len(s.carry) == 0 {
		return "", false
	}
	line := trimCR(string(s.carry))
	s.carry = nil
	return line, true
}

// Pending 当前缓存的字节数
func (s *Splitter) Pending() int { return len(s.carry) }

func trimCR(line string) string {
	return strings.TrimSuffix(line, "\r")
}

// LineFunc 处理一行,返回 stop=true 时停止读取
type LineFunc func(line string) (stop bool, err error)

const readChunkSize = 4096

// ReadLines 逐块读取 r 并按行回调 fn,直到 EOF、fn 要求停止、fn 返回错误或 ctx 取消。
// EOF 时最后一行即使没有换行也会交给 fn。
func ReadLines(ctx context.Context, r io.Reader, fn LineFunc) error {
	var sp Splitter
	buf := make([]byte, readChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			for _, line := range sp.Feed(buf[:n]) {
				stop, err := fn(line)
				if err != nil || stop {
					return err
				}
			}
		}

		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				return readErr
			}
			if line, ok := sp.Flush(); ok {
				if _, err := fn(line); err != nil {
					return err
				}
			}
			return nil
		}
	}
}
