package ingest

import (
	"context"

	"github.com/eahazardswatch/geoingest/pkg/toolchain"
	"github.com/eahazardswatch/geoingest/pkg/utils"
	"github.com/pkg/errors"
)

// Conversion applies a constant to every valid pixel.
type Conversion struct {
	Operation string
	Constant  float64
}

// BandProduct describes a single band written as a COG.
type BandProduct struct {
	// Source is a GDAL dataset name, a file or a subdataset.
	Source string
	// Band is 1-based.
	Band     int
	Output   string
	Convert  *Conversion
	Units    string
	Compress string
}

// WriteCOG writes the band product as a Cloud Optimized GeoTIFF in EPSG:4326 with the default nodata value.
func (b *Base) WriteCOG(ctx context.Context, product BandProduct) error {
	if err := utils.EnsureParentDirectory(product.Output); err != nil {
		return errors.Wrap(err, "failed creating product directory")
	}
	if product.Convert == nil {
		return b.deps.Toolchain.ToCOG(ctx, product.Source, product.Output, toolchain.COGOptions{
			Band:     product.Band,
			SRS:      "EPSG:4326",
			NoData:   toolchain.NoData(toolchain.DefaultNoData),
			Compress: product.Compress,
			Units:    product.Units,
		})
	}
	expression, err := ConvertExpression(product.Convert.Operation, product.Convert.Constant)
	if err != nil {
		return err
	}
	b.logger.Debug("converting band", "operation", product.Convert.Operation, "constant", product.Convert.Constant)
	opts := toolchain.CalcOptions{
		Inputs:     map[string][]string{"A": {product.Source}},
		Expression: expression,
		NoData:     toolchain.NoData(toolchain.DefaultNoData),
		Type:       "Float32",
		COG:        true,
	}
	if product.Band > 0 {
		opts.Bands = map[string]int{"A": product.Band}
	}
	return b.deps.Toolchain.Calc(ctx, product.Output, opts)
}
