package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tri-scoring/backend/internal/calibration"
	"github.com/tri-scoring/backend/internal/config"
	"github.com/tri-scoring/backend/internal/equating"
	"github.com/tri-scoring/backend/internal/irt"
	"github.com/tri-scoring/backend/internal/logger"
	"github.com/tri-scoring/backend/internal/models"
	"github.com/tri-scoring/backend/internal/scoring"
)

// app holds what every subcommand needs once flags and config are parsed.
type app struct {
	cfg config.Config
	log *logger.Logger
	out string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var logMode string

	root := &cobra.Command{
		Use:           "tri",
		Short:         "Score, calibrate and equate 3PL item response data from JSON tables",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if logMode != "" {
				cfg.LogMode = logMode
			}
			lg, err := logger.New(cfg.LogMode)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			a.cfg, a.log = cfg, lg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logMode, "log", "", "Log mode: dev or prod (overrides LOG_MODE)")
	root.PersistentFlags().StringVarP(&a.out, "out", "o", "", "Write JSON output to this file instead of stdout")

	root.AddCommand(a.scoreCmd(), a.calibrateCmd(), a.equateCmd(), a.recommendCmd())
	return root
}

// ── score ───────────────────────────────────────────────

func (a *app) scoreCmd() *cobra.Command {
	var responsesPath, paramsPath string
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Estimate theta and reporting-scale score for every student",
		Long: `Estimate theta and reporting-scale score for every student.
Item parameters that fail validation are rejected. The output carries a
warnings list naming students whose theta defaulted to 0.0.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var records []models.ResponseRecord
			if err := readJSON(responsesPath, &records); err != nil {
				return err
			}
			var params []models.ItemParameters
			if paramsPath != "" {
				if err := readJSON(paramsPath, &params); err != nil {
					return err
				}
			}
			out, err := a.scorer().Process(cmd.Context(), records, params)
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&responsesPath, "responses", "", "JSON array of {student_id, item_id, correct}")
	cmd.Flags().StringVar(&paramsPath, "params", "", "JSON array of item parameters (defaults are used when omitted)")
	_ = cmd.MarkFlagRequired("responses")
	return cmd
}

// ── calibrate ───────────────────────────────────────────

func (a *app) calibrateCmd() *cobra.Command {
	var responsesPath, anchorsPath, method string
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Estimate item parameters, relative to anchors when any are given",
		RunE: func(cmd *cobra.Command, args []string) error {
			var records []models.ResponseRecord
			if err := readJSON(responsesPath, &records); err != nil {
				return err
			}
			var anchors []models.ItemParameters
			if anchorsPath != "" {
				if err := readJSON(anchorsPath, &anchors); err != nil {
					return err
				}
			}
			res, err := a.calibrator().Calibrate(cmd.Context(), records, anchors, calibration.Options{Method: models.Method(method)})
			if err != nil {
				return err
			}
			v := calibration.Validate(res.Parameters)
			if !v.Valid {
				return fmt.Errorf("calibration failed validation: %v", v.Errors)
			}
			return a.emit(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&responsesPath, "responses", "", "JSON array of {student_id, item_id, correct}")
	cmd.Flags().StringVar(&anchorsPath, "anchors", "", "JSON array of anchor item parameters")
	cmd.Flags().StringVar(&method, "method", string(models.MethodML), "Estimation method: ML or MLF")
	_ = cmd.MarkFlagRequired("responses")
	return cmd
}

// ── equate ──────────────────────────────────────────────

func (a *app) equateCmd() *cobra.Command {
	var oldAnchorsPath, newAnchorsPath, oldParamsPath, newParamsPath string
	cmd := &cobra.Command{
		Use:   "equate",
		Short: "Put a new application's parameters on the scale of an old one",
		RunE: func(cmd *cobra.Command, args []string) error {
			var oldAnchors, newAnchors, oldParams, newParams []models.ItemParameters
			for _, in := range []struct {
				path string
				dst  *[]models.ItemParameters
			}{
				{oldAnchorsPath, &oldAnchors},
				{newAnchorsPath, &newAnchors},
				{oldParamsPath, &oldParams},
				{newParamsPath, &newParams},
			} {
				if in.path == "" {
					continue
				}
				if err := readJSON(in.path, in.dst); err != nil {
					return err
				}
			}
			res, err := equating.NewEquator(a.log, nil).Equate(
				models.ParameterMap(models.AsAnchors(oldAnchors)),
				models.ParameterMap(models.AsAnchors(newAnchors)),
				oldParams, newParams,
			)
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&oldAnchorsPath, "old-anchors", "", "Anchor parameters on the reference scale")
	cmd.Flags().StringVar(&newAnchorsPath, "new-anchors", "", "Anchor parameters on the new scale")
	cmd.Flags().StringVar(&oldParamsPath, "old-params", "", "All reference item parameters (quality report only)")
	cmd.Flags().StringVar(&newParamsPath, "new-params", "", "Item parameters to transform")
	_ = cmd.MarkFlagRequired("old-anchors")
	_ = cmd.MarkFlagRequired("new-anchors")
	return cmd
}

// ── recommend ───────────────────────────────────────────

func (a *app) recommendCmd() *cobra.Command {
	var anchorsPath, poolPath string
	var count int
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Rank pool items as candidate anchors",
		RunE: func(cmd *cobra.Command, args []string) error {
			var current, pool []models.ItemParameters
			if anchorsPath != "" {
				if err := readJSON(anchorsPath, &current); err != nil {
					return err
				}
			}
			if err := readJSON(poolPath, &pool); err != nil {
				return err
			}
			recs := equating.NewEquator(a.log, nil).RecommendAnchors(models.ParameterMap(current), pool, count)
			return a.emit(cmd.OutOrStdout(), recs)
		},
	}
	cmd.Flags().StringVar(&anchorsPath, "anchors", "", "Current anchor parameters (excluded from the ranking)")
	cmd.Flags().StringVar(&poolPath, "pool", "", "Candidate item parameters")
	cmd.Flags().IntVar(&count, "count", equating.DefaultAnchorCount, "Number of items to recommend")
	_ = cmd.MarkFlagRequired("pool")
	return cmd
}

// ── Helpers ─────────────────────────────────────────────

func (a *app) estimator() *irt.Estimator {
	return irt.NewEstimator(irt.EstimatorConfigFrom(a.cfg.TRI), a.log, nil)
}

func (a *app) scorer() *scoring.Scorer {
	return scoring.NewScorer(scoring.ConfigFrom(a.cfg.TRI), a.estimator(), a.log, nil)
}

func (a *app) calibrator() *calibration.Calibrator {
	return calibration.NewCalibrator(calibration.ConfigFrom(a.cfg.TRI), a.estimator(), a.log, nil)
}

func (a *app) emit(stdout io.Writer, v interface{}) error {
	w := stdout
	if a.out != "" {
		f, err := os.Create(a.out)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readJSON(path string, dst interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
