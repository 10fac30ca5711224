package http

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	apierrors "repgap/internal/errors"
	"repgap/internal/gapanalysis"
	api "repgap/pkg/contracts/api/v1"
)

// OptionsFromRequest maps the API options onto engine options
func OptionsFromRequest(opts api.AnalysisOptions) gapanalysis.Options {
	return gapanalysis.Options{
		Filter: gapanalysis.Filter{
			Entities:   opts.Filter.Entities,
			Grades:     opts.Filter.Grades,
			Components: opts.Filter.Components,
		},
		Targets:               opts.Targets,
		Band:                  opts.Band,
		Sort:                  opts.Sort,
		Value:                 opts.Value,
		ShortLabels:           opts.ShortLabels,
		LabelMaxLength:        opts.LabelMaxLength,
		IncludeOverAttributed: opts.IncludeOverAttributed,
		Rollup:                opts.Rollup,
	}
}

// TableFromRequest copies a JSON table into an engine RawTable. Cells keep
// their decoded JSON types; coercion is the normalizer's job.
func TableFromRequest(req api.AnalysisRequest) gapanalysis.RawTable {
	table := gapanalysis.RawTable{
		Headers: req.Headers,
		Rows:    make([]gapanalysis.RawRow, 0, len(req.Rows)),
	}
	for _, row := range req.Rows {
		table.Rows = append(table.Rows, gapanalysis.RawRow(row))
	}
	return table
}

// optionsFromForm reads analysis options from multipart form fields. List
// fields may repeat or hold comma-separated values; targets is a JSON object.
func optionsFromForm(form url.Values) (api.AnalysisOptions, error) {
	opts := api.AnalysisOptions{
		Sort:   strings.TrimSpace(form.Get("sort")),
		Value:  strings.TrimSpace(form.Get("value")),
		Rollup: strings.TrimSpace(form.Get("rollup")),
		Filter: api.FilterRequest{
			Entities:   formList(form, "entity"),
			Grades:     formList(form, "grade"),
			Components: formList(form, "component"),
		},
	}

	if v := strings.TrimSpace(form.Get("band")); v != "" {
		band, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return opts, apierrors.ErrValidation("band", "band must be a number")
		}
		opts.Band = &band
	}
	if v := strings.TrimSpace(form.Get("label_max_length")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, apierrors.ErrValidation("label_max_length", "label_max_length must be an integer")
		}
		opts.LabelMaxLength = n
	}

	var err error
	if opts.ShortLabels, err = formBool(form, "short_labels"); err != nil {
		return opts, err
	}
	if opts.IncludeOverAttributed, err = formBool(form, "include_over_attributed"); err != nil {
		return opts, err
	}

	if v := strings.TrimSpace(form.Get("targets")); v != "" {
		if err := json.Unmarshal([]byte(v), &opts.Targets); err != nil {
			return opts, apierrors.ErrValidation("targets", fmt.Sprintf("targets must be a JSON object of percentages: %v", err))
		}
	}
	return opts, nil
}

func formBool(form url.Values, key string) (bool, error) {
	v := strings.TrimSpace(form.Get(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, apierrors.ErrValidation(key, key+" must be a boolean")
	}
	return b, nil
}

func formList(form url.Values, key string) []string {
	var out []string
	for _, v := range form[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
