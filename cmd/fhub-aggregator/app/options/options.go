package options

import (
	"github.com/spf13/pflag"

	"github.com/forgehub-io/forgehub/internal/aggregator"
	"github.com/forgehub-io/forgehub/pkg/log"
	"github.com/forgehub-io/forgehub/pkg/options"
)

// AggregatorOptions bundles every option group of the aggregation node.
type AggregatorOptions struct {
	Node        *aggregator.Options  `json:"node" mapstructure:"node"`
	MqttOptions *options.MqttOptions `json:"mqtt" mapstructure:"mqtt"`
	HttpOptions *options.HttpOptions `json:"http" mapstructure:"http"`
	S3Options   *options.S3Options   `json:"s3" mapstructure:"s3"`
	Log         *log.Options         `json:"log" mapstructure:"log"`
}

func NewAggregatorOptions() *AggregatorOptions {
	return &AggregatorOptions{
		Node:        aggregator.NewOptions(),
		MqttOptions: options.NewMqttOptions(),
		HttpOptions: options.NewHttpOptions(),
		S3Options:   options.NewS3Options(),
		Log:         log.NewOptions(),
	}
}

// AddFlags registers every option group's flags on the command's FlagSet.
func (o *AggregatorOptions) AddFlags(fs *pflag.FlagSet) {
	o.Node.AddFlags(fs)
	o.MqttOptions.AddFlags(fs)
	o.HttpOptions.AddFlags(fs)
	o.S3Options.AddFlags(fs)
	o.Log.AddFlags(fs)
}

// Validate aggregates validation errors from all option groups.
func (o *AggregatorOptions) Validate() []error {
	errs := []error{}
	errs = append(errs, o.Node.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.S3Options.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return errs
}
