package builder

import (
	"context"

	"pcindex/internal/fetch"
	"pcindex/internal/ingest"
	"pcindex/internal/records"
)

// FromArchives：两份 BAG 压缩包作为导入来源；来源可以是本地路径、s3:// 或 http(s)://，远端先下载到 cacheDir
func FromArchives(cacheDir, numSrc, vboSrc string, workers int) Sources {
	return Sources{
		Postcodes: func(ctx context.Context) (*records.Postcodes, error) {
			p, err := fetch.Resolve(ctx, numSrc, cacheDir)
			if err != nil {
				return nil, err
			}
			return ingest.ReadPostcodes(ctx, p, workers)
		},
		Locations: func(ctx context.Context) (*records.Locations, error) {
			p, err := fetch.Resolve(ctx, vboSrc, cacheDir)
			if err != nil {
				return nil, err
			}
			return ingest.ReadLocations(ctx, p, workers)
		},
	}
}
