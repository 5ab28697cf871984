package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"dhlprep/database"
	"dhlprep/enrichment"
	"dhlprep/importer"
	"dhlprep/internal/config"
	"dhlprep/normalization"
	"dhlprep/workflows"
)

func main() {
	log.Println("═══════════════════════════════════════════")
	log.Println("🚀 dhlprep — обработка книг отправлений DHL")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch os.Args[1] {
	case "enrich":
		err = runEnrich(ctx, cfg, os.Args[2:])
	case "build":
		err = runBuild(cfg, os.Args[2:])
	case "split":
		err = runSplit(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("Ошибка: %v", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Использование:
  dhlprep enrich -in <input.xlsx> -countries <countries.xlsx> -out <output.xlsx>
      обогащение городов и почтовых индексов через DHL Location Finder
  dhlprep build -in <input.xlsx> -countries <countries.xlsx> -template <template.xlsx> -out <output.xlsx>
      сборка итоговой книги по шаблону с листом _QC
  dhlprep split -in <main.xlsx> -items <Items.xlsx> [-outdir <dir>]
      разбиение по вкладкам с позициями и ZIP-архивом`)
}

// runEnrich прогон обогащения индексов/городов
func runEnrich(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("enrich", flag.ExitOnError)
	inPath := fs.String("in", "", "входная книга .xlsx")
	countriesPath := fs.String("countries", "", "справочник стран .xlsx")
	outPath := fs.String("out", "", "выходная книга .xlsx")
	onlyEmpty := fs.Bool("only-empty", cfg.OnlyEmpty, "заполнять только пустые ячейки")
	fs.Parse(args)

	if *inPath == "" || *countriesPath == "" || *outPath == "" {
		return fmt.Errorf("требуются флаги -in, -countries и -out")
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}

	tn := normalization.NewTextNormalizer()
	resolver, _, err := loadResolver(tn, *countriesPath)
	if err != nil {
		return err
	}

	store, err := database.NewGeoCacheDB(cfg.GeoCacheDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	client := enrichment.NewClient(enrichment.ClientConfig{
		BaseURL:      cfg.DHLBaseURL,
		APIKey:       cfg.DHLAPIKey,
		Timeout:      cfg.Timeout,
		RequestDelay: cfg.RequestDelay,
		MaxRetries:   cfg.MaxRetries,
	})

	engine, err := enrichment.NewEngine(store, client, enrichment.Options{
		ProviderType:         cfg.ProviderType,
		ServiceType:          cfg.ServiceType,
		LimitResults:         cfg.LimitResults,
		MaxAcceptedDistanceM: cfg.MaxAcceptedDistanceM,
		RequestDelay:         cfg.RequestDelay,
		MaxRetries:           cfg.MaxRetries,
		DisableStrictCity:    !cfg.StrictCityFromDHL,
		DisableCapital:       !cfg.FallbackToCapital,
		OnlyEmpty:            *onlyEmpty,
	})
	if err != nil {
		return err
	}

	run := workflows.NewPostalEnricher(tn, resolver, engine)
	summary, err := run.Run(ctx, *inPath, *outPath)
	if err != nil {
		return err
	}

	log.Printf("Прогон %s: строк %d, ok_api %d, ok_cached %d, needs_review %d",
		summary.RunID, summary.TotalRows, summary.OkAPI, summary.OkCached, summary.NeedsReview)
	return nil
}

// runBuild сборка итоговой книги по шаблону
func runBuild(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	inPath := fs.String("in", "", "входная книга .xlsx")
	countriesPath := fs.String("countries", "", "справочник стран .xlsx")
	templatePath := fs.String("template", "", "шаблон итоговой книги .xlsx")
	outPath := fs.String("out", "", "выходная книга .xlsx")
	fs.Parse(args)

	if *inPath == "" || *countriesPath == "" || *templatePath == "" || *outPath == "" {
		return fmt.Errorf("требуются флаги -in, -countries, -template и -out")
	}

	tn := normalization.NewTextNormalizer()
	resolver, ddp, err := loadResolver(tn, *countriesPath)
	if err != nil {
		return err
	}

	template, err := workflows.LoadTemplate(tn, *templatePath)
	if err != nil {
		return err
	}

	contacts, err := workflows.NewContactReader(tn).ReadWorkbook(*inPath)
	if err != nil {
		return err
	}

	phones := normalization.NewPhoneNormalizer(tn)
	builder := workflows.NewFinalBuilder(tn, resolver, phones, ddp)
	summary, err := builder.Run(contacts, template, *outPath)
	if err != nil {
		return err
	}

	log.Printf("Готово: строк %d, подсвечено %d, строк QC %d", summary.Rows, summary.Highlighted, summary.QCRows)
	return nil
}

// runSplit разбиение основной книги по вкладкам
func runSplit(args []string) error {
	fs := flag.NewFlagSet("split", flag.ExitOnError)
	inPath := fs.String("in", "", "основная книга .xlsx")
	itemsPath := fs.String("items", "", "книга позиций Items.xlsx")
	outDir := fs.String("outdir", "output_multiline", "каталог результатов")
	blankPhone := fs.Bool("blank-phone", false, "гасить телефон на строках-продолжениях")
	fs.Parse(args)

	if *inPath == "" || *itemsPath == "" {
		return fmt.Errorf("требуются флаги -in и -items")
	}

	tn := normalization.NewTextNormalizer()
	phones := normalization.NewPhoneNormalizer(tn)
	splitter := workflows.NewPerTabSplitter(tn, phones)

	result, err := splitter.Run(*inPath, *itemsPath, workflows.PerTabOptions{
		BlankPhoneOnItemLines: *blankPhone,
		OutDirName:            *outDir,
	})
	if err != nil {
		return err
	}

	log.Printf("Архив: %s (вкладок: %d)", result.ZipPath, result.PerTabCount)
	return nil
}

// loadResolver загружает справочник стран и строит резолвер с DDP-множеством
func loadResolver(tn *normalization.TextNormalizer, countriesPath string) (*normalization.CountryResolver, normalization.DDPSet, error) {
	records, ddpValues, err := importer.LoadCountryTable(countriesPath)
	if err != nil {
		return nil, nil, err
	}
	resolver := normalization.NewCountryResolver(tn, records)
	ddp := resolver.BuildDDPSet(ddpValues)
	return resolver, ddp, nil
}
