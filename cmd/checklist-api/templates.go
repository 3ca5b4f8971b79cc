package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/checklist-api/project/internal/app/checklist"
	"github.com/checklist-api/project/internal/platform/logging"
)

// templateFile is the import format:
//
//	templates:
//	  - name: onboarding
//	    checklist: {description: Onboard, due_interval: 3, due_unit: hour}
//	    items:
//	      - {description: Call, urgency: 2, due_interval: 40, due_unit: minute}
type templateFile struct {
	Templates []templateDoc `yaml:"templates"`
}

type ruleDoc struct {
	Description string     `yaml:"description"`
	Urgency     *int       `yaml:"urgency"`
	DueInterval int        `yaml:"due_interval"`
	DueUnit     string     `yaml:"due_unit"`
	Due         *time.Time `yaml:"due"`
}

type templateDoc struct {
	Name      string    `yaml:"name"`
	Checklist ruleDoc   `yaml:"checklist"`
	Items     []ruleDoc `yaml:"items"`
}

func (d templateDoc) spec() checklist.TemplateSpec {
	spec := checklist.TemplateSpec{
		Name: d.Name,
		Checklist: checklist.ChecklistRule{
			Description: d.Checklist.Description,
			DueInterval: d.Checklist.DueInterval,
			DueUnit:     d.Checklist.DueUnit,
			Due:         d.Checklist.Due,
		},
	}
	for _, it := range d.Items {
		spec.Items = append(spec.Items, checklist.ItemRule{
			Description: it.Description,
			Urgency:     it.Urgency,
			DueInterval: it.DueInterval,
			DueUnit:     it.DueUnit,
			Due:         it.Due,
		})
	}
	return spec
}

func readTemplateFile(path string) ([]checklist.TemplateSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc templateFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(doc.Templates) == 0 {
		return nil, fmt.Errorf("%s: no templates", path)
	}
	specs := make([]checklist.TemplateSpec, 0, len(doc.Templates))
	for _, t := range doc.Templates {
		specs = append(specs, t.spec())
	}
	return specs, nil
}

func newTemplatesCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage checklist templates",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Create templates from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := readTemplateFile(args[0])
			if err != nil {
				return err
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateStorage(); err != nil {
				return err
			}
			log := logging.New(cfg.Log, serviceName)
			repo, closeRepo, err := openRepository(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer closeRepo()

			svc := checklist.NewService(repo, nil, log)
			for _, spec := range specs {
				t, err := svc.CreateTemplate(cmd.Context(), spec)
				if err != nil {
					return fmt.Errorf("template %q: %w", spec.Name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", t.ID, t.Name)
			}
			return nil
		},
	})
	return cmd
}
