package backend

import "io"

type progressReader struct {
	r      io.Reader
	total  int64
	loaded int64
	report func(loaded, total int64)
}

func newProgressReader(r io.Reader, total int64, report func(loaded, total int64)) *progressReader {
	return &progressReader{r: r, total: total, report: report}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.loaded += int64(n)
		p.report(p.loaded, p.total)
	}
	return n, err
}
