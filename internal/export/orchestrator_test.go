package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docvault/internal/model"
	"docvault/internal/service"
	svcMocks "docvault/internal/service/mocks"
)

type fetchFunc func(ctx context.Context, url string) ([]byte, error)

func (f fetchFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

// urlFetcher serves "mem://<body>" URLs.
var urlFetcher = fetchFunc(func(ctx context.Context, url string) ([]byte, error) {
	return []byte(strings.TrimPrefix(url, "mem://")), nil
})

func link(id, name string) *service.DownloadLink {
	return &service.DownloadLink{DocumentID: id, FileName: name, URL: "mem://" + name}
}

func listOf(names ...string) *service.DocumentListResult {
	res := &service.DocumentListResult{Total: len(names), Page: 1, Limit: service.MaxPageLimit}
	for i, n := range names {
		res.Items = append(res.Items, model.Document{ID: fmt.Sprintf("doc-%d", i+1), OriginalFileName: n})
	}
	return res
}

func expectLinks(src *svcMocks.MockDocumentService, names ...string) {
	for i, n := range names {
		id := fmt.Sprintf("doc-%d", i+1)
		src.On("IssueDownloadLink", mock.Anything, id, "owner-1", mock.Anything).Return(link(id, n), nil)
	}
}

func readZip(t *testing.T, blob []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	require.NoError(t, err)
	out := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		out[f.Name] = string(b)
	}
	return out
}

func TestBatchExport_Archive(t *testing.T) {
	src := new(svcMocks.MockDocumentService)
	names := []string{"成绩单.pdf", "证书.pdf", "成绩单.pdf"}
	src.On("List", mock.Anything, "owner-1", service.ListQuery{Page: 1, Limit: service.MaxPageLimit}).Return(listOf(names...), nil)
	expectLinks(src, names...)

	o := NewOrchestrator(src, NewZipArchiver(true, 0), urlFetcher, Config{Workers: 2})
	res, err := o.BatchExport(context.Background(), "owner-1", nil, &LinkCollector{})

	require.NoError(t, err)
	assert.Equal(t, ModeArchive, res.Mode)
	assert.Equal(t, 3, res.SucceededCount)
	assert.Equal(t, 0, res.FailedCount)
	assert.Empty(t, res.Errors)

	files := readZip(t, res.Archive)
	assert.Equal(t, map[string]string{
		"成绩单.pdf":     "成绩单.pdf",
		"证书.pdf":      "证书.pdf",
		"成绩单 (1).pdf": "成绩单.pdf",
	}, files)
	src.AssertExpectations(t)
}

func TestBatchExport_Completeness(t *testing.T) {
	const n = 6
	failing := map[string]bool{"doc-2": true, "doc-5": true}

	src := new(svcMocks.MockDocumentService)
	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("doc-%d", i)
		ids = append(ids, id)
		if failing[id] {
			src.On("IssueDownloadLink", mock.Anything, id, "owner-1", mock.Anything).Return(nil, service.ErrStorageRead)
			continue
		}
		src.On("IssueDownloadLink", mock.Anything, id, "owner-1", mock.Anything).Return(link(id, id+".pdf"), nil)
	}

	for _, archived := range []bool{true, false} {
		t.Run(fmt.Sprintf("archive=%v", archived), func(t *testing.T) {
			o := NewOrchestrator(src, NewZipArchiver(archived, 0), urlFetcher, Config{Workers: 3})
			collector := &LinkCollector{}

			res, err := o.BatchExport(context.Background(), "owner-1", ids, collector)

			require.NoError(t, err)
			assert.Equal(t, n, res.SucceededCount+res.FailedCount)
			assert.Equal(t, len(failing), res.FailedCount)
			require.Len(t, res.Errors, len(failing))
			for id := range failing {
				assert.True(t, containsPrefix(res.Errors, id+":"), "missing error for %s", id)
			}
			if archived {
				assert.Len(t, readZip(t, res.Archive), n-len(failing))
			} else {
				assert.Nil(t, res.Archive)
				assert.Len(t, collector.Links(), n-len(failing))
			}
		})
	}
}

func containsPrefix(list []string, prefix string) bool {
	for _, s := range list {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

func TestBatchExport_FallsBackWhenArchiveUnavailable(t *testing.T) {
	names := []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf"}
	src := new(svcMocks.MockDocumentService)
	src.On("List", mock.Anything, "owner-1", mock.Anything).Return(listOf(names...), nil)
	for i, n := range names {
		id := fmt.Sprintf("doc-%d", i+1)
		if i == 3 {
			src.On("IssueDownloadLink", mock.Anything, id, "owner-1", mock.Anything).Return(nil, errors.New("sign failed"))
			continue
		}
		src.On("IssueDownloadLink", mock.Anything, id, "owner-1", mock.Anything).Return(link(id, n), nil)
	}
	collector := &LinkCollector{}

	o := NewOrchestrator(src, NewZipArchiver(false, 0), urlFetcher, Config{})
	res, err := o.BatchExport(context.Background(), "owner-1", nil, collector)

	require.NoError(t, err)
	assert.Equal(t, ModeSequential, res.Mode)
	assert.Equal(t, 5, res.Total())
	assert.Equal(t, 4, res.SucceededCount)
	assert.Equal(t, []string{"d.pdf: sign failed"}, res.Errors)
	assert.Nil(t, res.Archive)

	links := collector.Links()
	require.Len(t, links, 4)
	assert.Equal(t, "a.pdf", links[0].FileName)
	assert.Equal(t, "e.pdf", links[3].FileName)
}

func TestBatchExport_SizeCapStopsFetchingAndCountsOnce(t *testing.T) {
	names := []string{"large-one.pdf", "large-two.pdf", "large-three.pdf"}
	src := new(svcMocks.MockDocumentService)
	src.On("List", mock.Anything, "owner-1", mock.Anything).Return(listOf(names...), nil)
	// The first two links are issued while archiving; the fallback re-signs
	// them without counting again and issues the third normally.
	for i, n := range names {
		id := fmt.Sprintf("doc-%d", i+1)
		if i < 2 {
			src.On("IssueDownloadLink", mock.Anything, id, "owner-1", service.LinkOptions{}).Return(link(id, n), nil).Once()
			src.On("IssueDownloadLink", mock.Anything, id, "owner-1", service.LinkOptions{Uncounted: true}).Return(link(id, n), nil).Once()
			continue
		}
		src.On("IssueDownloadLink", mock.Anything, id, "owner-1", service.LinkOptions{}).Return(link(id, n), nil).Once()
	}

	var fetches atomic.Int32
	fetcher := fetchFunc(func(ctx context.Context, url string) ([]byte, error) {
		fetches.Add(1)
		return urlFetcher(ctx, url)
	})
	collector := &LinkCollector{}

	o := NewOrchestrator(src, NewZipArchiver(true, 16), fetcher, Config{Workers: 1})
	res, err := o.BatchExport(context.Background(), "owner-1", nil, collector)

	require.NoError(t, err)
	assert.Equal(t, ModeSequential, res.Mode)
	assert.Equal(t, 3, res.SucceededCount)
	assert.Equal(t, int32(2), fetches.Load())
	assert.Len(t, collector.Links(), 3)
	src.AssertExpectations(t)
}

func TestBatchExport_ArchiveFetchesAreBounded(t *testing.T) {
	const workers, n = 3, 12
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("file-%02d.pdf", i)
	}
	src := new(svcMocks.MockDocumentService)
	src.On("List", mock.Anything, "owner-1", mock.Anything).Return(listOf(names...), nil)
	expectLinks(src, names...)

	var inFlight, peak atomic.Int32
	fetcher := fetchFunc(func(ctx context.Context, url string) ([]byte, error) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return urlFetcher(ctx, url)
	})

	o := NewOrchestrator(src, NewZipArchiver(true, 0), fetcher, Config{Workers: workers})
	res, err := o.BatchExport(context.Background(), "owner-1", nil, &LinkCollector{})

	require.NoError(t, err)
	assert.Equal(t, ModeArchive, res.Mode)
	assert.Equal(t, n, res.SucceededCount)
	assert.LessOrEqual(t, peak.Load(), int32(workers))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestBatchExport_CollectedLinksAreScheduledNotWaited(t *testing.T) {
	const delay = 200 * time.Millisecond
	names := []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf"}
	src := new(svcMocks.MockDocumentService)
	src.On("List", mock.Anything, "owner-1", mock.Anything).Return(listOf(names...), nil)
	src.On("IssueDownloadLink", mock.Anything, "doc-1", "owner-1", service.LinkOptions{}).Return(link("doc-1", "a.pdf"), nil).Once()
	src.On("IssueDownloadLink", mock.Anything, "doc-2", "owner-1", service.LinkOptions{Delay: delay}).Return(nil, service.ErrNotFound).Once()
	src.On("IssueDownloadLink", mock.Anything, "doc-3", "owner-1", service.LinkOptions{Delay: delay}).Return(link("doc-3", "c.pdf"), nil).Once()
	src.On("IssueDownloadLink", mock.Anything, "doc-4", "owner-1", service.LinkOptions{Delay: 2 * delay}).Return(link("doc-4", "d.pdf"), nil).Once()
	collector := &LinkCollector{}

	o := NewOrchestrator(src, NewZipArchiver(false, 0), urlFetcher, Config{FallbackDelay: delay})
	start := time.Now()
	res, err := o.BatchExport(context.Background(), "owner-1", nil, collector)

	require.NoError(t, err)
	assert.Less(t, time.Since(start), delay)
	assert.Equal(t, 3, res.SucceededCount)
	assert.Equal(t, 1, res.FailedCount)

	links := collector.Links()
	require.Len(t, links, 3)
	assert.Equal(t, []int64{0, 200, 400}, []int64{links[0].TransferAfterMS, links[1].TransferAfterMS, links[2].TransferAfterMS})
	assert.Equal(t, "c.pdf", links[1].FileName)
	src.AssertExpectations(t)
}

func TestBatchExport_FallbackIsThrottled(t *testing.T) {
	names := []string{"a.pdf", "b.pdf", "c.pdf"}
	src := new(svcMocks.MockDocumentService)
	src.On("List", mock.Anything, "owner-1", mock.Anything).Return(listOf(names...), nil)
	expectLinks(src, names...)

	var stamps []time.Time
	transfer := TransferFunc(func(ctx context.Context, l service.DownloadLink) error {
		stamps = append(stamps, time.Now())
		return nil
	})

	o := NewOrchestrator(src, NewZipArchiver(false, 0), urlFetcher, Config{FallbackDelay: 30 * time.Millisecond})
	res, err := o.BatchExport(context.Background(), "owner-1", nil, transfer)

	require.NoError(t, err)
	assert.Equal(t, 3, res.SucceededCount)
	require.Len(t, stamps, 3)
	for i := 1; i < len(stamps); i++ {
		assert.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), 25*time.Millisecond)
	}
}

func TestBatchExport_TransferFailuresAreIndependent(t *testing.T) {
	names := []string{"a.pdf", "b.pdf", "c.pdf"}
	src := new(svcMocks.MockDocumentService)
	src.On("List", mock.Anything, "owner-1", mock.Anything).Return(listOf(names...), nil)
	expectLinks(src, names...)

	transfer := TransferFunc(func(ctx context.Context, l service.DownloadLink) error {
		if l.FileName == "a.pdf" {
			return errors.New("download manager busy")
		}
		return nil
	})

	o := NewOrchestrator(src, NewZipArchiver(false, 0), urlFetcher, Config{})
	res, err := o.BatchExport(context.Background(), "owner-1", nil, transfer)

	require.NoError(t, err)
	assert.Equal(t, 2, res.SucceededCount)
	assert.Equal(t, []string{"a.pdf: download manager busy"}, res.Errors)
}

func TestBatchExport_ArchiveFetchFailureIsPerFile(t *testing.T) {
	names := []string{"ok.pdf", "broken.pdf"}
	src := new(svcMocks.MockDocumentService)
	src.On("List", mock.Anything, "owner-1", mock.Anything).Return(listOf(names...), nil)
	expectLinks(src, names...)

	fetcher := fetchFunc(func(ctx context.Context, url string) ([]byte, error) {
		if strings.HasSuffix(url, "broken.pdf") {
			return nil, fmt.Errorf("%w: fetch: unexpected status 404", service.ErrStorageRead)
		}
		return []byte("ok"), nil
	})

	o := NewOrchestrator(src, NewZipArchiver(true, 0), fetcher, Config{})
	res, err := o.BatchExport(context.Background(), "owner-1", nil, &LinkCollector{})

	require.NoError(t, err)
	assert.Equal(t, ModeArchive, res.Mode)
	assert.Equal(t, 1, res.SucceededCount)
	assert.Equal(t, 1, res.FailedCount)
	assert.Equal(t, map[string]string{"ok.pdf": "ok"}, readZip(t, res.Archive))
}

func TestBatchExport_TotalFailureIsReported(t *testing.T) {
	src := new(svcMocks.MockDocumentService)
	src.On("IssueDownloadLink", mock.Anything, mock.Anything, "owner-1", mock.Anything).Return(nil, service.ErrNotFound)

	o := NewOrchestrator(src, NewZipArchiver(true, 0), urlFetcher, Config{})
	res, err := o.BatchExport(context.Background(), "owner-1", []string{"x", "y", "x", ""}, &LinkCollector{})

	require.NoError(t, err)
	assert.Equal(t, ModeArchive, res.Mode)
	assert.Equal(t, 0, res.SucceededCount)
	assert.Equal(t, 2, res.FailedCount)
	assert.Nil(t, res.Archive)
	src.AssertNumberOfCalls(t, "IssueDownloadLink", 2)
}

func TestBatchExport_Empty(t *testing.T) {
	src := new(svcMocks.MockDocumentService)
	src.On("List", mock.Anything, "owner-1", mock.Anything).Return(listOf(), nil)

	o := NewOrchestrator(src, NewZipArchiver(true, 0), urlFetcher, Config{})
	res, err := o.BatchExport(context.Background(), "owner-1", nil, &LinkCollector{})

	require.NoError(t, err)
	assert.Equal(t, ModeEmpty, res.Mode)
	assert.Equal(t, 0, res.Total())
}

func TestBatchExport_EnumerationFailure(t *testing.T) {
	src := new(svcMocks.MockDocumentService)
	src.On("List", mock.Anything, "owner-1", mock.Anything).Return(nil, errors.New("db down"))

	o := NewOrchestrator(src, NewZipArchiver(true, 0), urlFetcher, Config{})
	res, err := o.BatchExport(context.Background(), "owner-1", nil, &LinkCollector{})

	assert.Nil(t, res)
	assert.ErrorContains(t, err, "db down")
}

func TestBatchExport_CancelDiscardsArchive(t *testing.T) {
	names := []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf"}
	src := new(svcMocks.MockDocumentService)
	src.On("List", mock.Anything, "owner-1", mock.Anything).Return(listOf(names...), nil)
	for i, n := range names {
		id := fmt.Sprintf("doc-%d", i+1)
		src.On("IssueDownloadLink", mock.Anything, id, "owner-1", mock.Anything).Return(link(id, n), nil).Maybe()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var fetches atomic.Int32
	fetcher := fetchFunc(func(fctx context.Context, url string) ([]byte, error) {
		fetches.Add(1)
		cancel()
		return nil, context.Canceled
	})

	o := NewOrchestrator(src, NewZipArchiver(true, 0), fetcher, Config{Workers: 1})
	res, err := o.BatchExport(ctx, "owner-1", nil, &LinkCollector{})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
	assert.Equal(t, int32(1), fetches.Load())
}

func TestBatchExport_CancelDuringFallbackKeepsPartialSummary(t *testing.T) {
	names := []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf"}
	src := new(svcMocks.MockDocumentService)
	src.On("List", mock.Anything, "owner-1", mock.Anything).Return(listOf(names...), nil)
	expectLinks(src, names...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var transfers int
	transfer := TransferFunc(func(ctx context.Context, l service.DownloadLink) error {
		transfers++
		if transfers == 2 {
			cancel()
		}
		return nil
	})

	o := NewOrchestrator(src, NewZipArchiver(false, 0), urlFetcher, Config{})
	res, err := o.BatchExport(ctx, "owner-1", nil, transfer)

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, ModeSequential, res.Mode)
	assert.Equal(t, 2, res.SucceededCount)
	assert.Equal(t, 2, transfers)
}

func TestBatchExport_RequiresOwner(t *testing.T) {
	o := NewOrchestrator(new(svcMocks.MockDocumentService), NewZipArchiver(true, 0), urlFetcher, Config{})
	_, err := o.BatchExport(context.Background(), "", nil, &LinkCollector{})
	assert.ErrorIs(t, err, service.ErrValidation)
}
