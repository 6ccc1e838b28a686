package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/shouni/saju-soulmate/pkg/domain"
	"github.com/shouni/saju-soulmate/pkg/session"
)

var (
	titleColor   = color.New(color.FgMagenta, color.Bold).SprintFunc()
	loadingColor = color.New(color.FgYellow).SprintFunc()
	successColor = color.New(color.FgGreen).SprintFunc()
	errorColor   = color.New(color.FgRed).SprintFunc()
)

type analyzeFlags struct {
	date   string
	time   string
	gender string
	out    string
}

func newAnalyzeCommand(a *app) *cobra.Command {
	f := &analyzeFlags{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "ターミナルから1回分の分析と肖像画生成を実行します",
		Example: `  soulmate analyze --date 1995-03-21 --gender female
  soulmate analyze --date 1990-11-02 --time 07:30 --gender male --out me.png`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.analyze(ctx, cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().StringVar(&f.date, "date", "", "生年月日 YYYY-MM-DD (陽暦)")
	cmd.Flags().StringVar(&f.time, "time", "", "出生時刻 HH:MM (省略時は時刻不明として扱う)")
	cmd.Flags().StringVar(&f.gender, "gender", string(domain.GenderFemale), "性別 (male|female)")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "画像の保存先 (既定: my-soulmate-<unix ms>.png)")
	return cmd
}

func (f *analyzeFlags) profile() (domain.UserProfile, error) {
	p := domain.NewUserProfile()
	g, err := domain.ParseGender(f.gender)
	if err != nil {
		return p, err
	}
	p.Gender = g
	p.BirthDate = f.date
	p.BirthTime = f.time
	p.KnowsTime = f.time != ""
	return p, nil
}

func (a *app) analyze(ctx context.Context, w io.Writer, f *analyzeFlags) error {
	profile, err := f.profile()
	if err != nil {
		return err
	}
	if err := profile.Validate(); err != nil {
		fmt.Fprintln(w, errorColor(session.MsgMissingBirthDate))
		return err
	}

	machine, err := a.newMachine(ctx, nil)
	if err != nil {
		return err
	}

	updates, unsubscribe := machine.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for snap := range updates {
			if snap.Message != "" {
				fmt.Fprintln(w, loadingColor(snap.Message))
			}
		}
	}()

	snap, err := machine.Analyze(ctx, profile)
	unsubscribe()
	<-done
	if err != nil {
		if errors.Is(err, session.ErrSuperseded) || ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprintln(w, errorColor(session.UserMessage(err)))
		return err
	}

	result := snap.Result
	out := f.out
	if out == "" {
		out = result.FileName()
	}
	if err := os.WriteFile(out, result.ImageData, 0o644); err != nil {
		return fmt.Errorf("画像の保存に失敗しました: %w", err)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, titleColor("✨ 나의 천생연분"))
	fmt.Fprintln(w, result.Analysis)
	fmt.Fprintln(w)
	abs, _ := filepath.Abs(out)
	fmt.Fprintln(w, successColor("이미지를 저장했습니다: "+abs))
	return nil
}
