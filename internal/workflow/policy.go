package workflow

import (
	"fmt"

	"partner-workspace/internal/common/errors"
	"partner-workspace/internal/models"
)

// Catalog lists the frameworks a collaboration can be created from.
type Catalog interface {
	Frameworks() []models.Framework
}

// FrameworkPolicy picks the framework a new collaboration is bound to.
type FrameworkPolicy interface {
	Select(app models.Application) (models.Framework, error)
}

// FirstInCatalog always binds the first catalog entry.
type FirstInCatalog struct {
	Catalog Catalog
}

func (p FirstInCatalog) Select(models.Application) (models.Framework, error) {
	fws := p.Catalog.Frameworks()
	if len(fws) == 0 {
		return models.Framework{}, errors.NewFrameworkNotFoundError("catalog is empty")
	}
	return fws[0].Copy(), nil
}

// FixedFramework binds the catalog entry with the given id.
type FixedFramework struct {
	Catalog Catalog
	ID      string
}

func (p FixedFramework) Select(models.Application) (models.Framework, error) {
	for _, fw := range p.Catalog.Frameworks() {
		if fw.ID == p.ID {
			return fw.Copy(), nil
		}
	}
	return models.Framework{}, errors.NewFrameworkNotFoundError(fmt.Sprintf("framework %q is not in the catalog", p.ID))
}

// NewPolicy builds a policy from its configured name.
func NewPolicy(name, frameworkID string, catalog Catalog) (FrameworkPolicy, error) {
	switch name {
	case "", "first":
		return FirstInCatalog{Catalog: catalog}, nil
	case "fixed":
		if frameworkID == "" {
			return nil, fmt.Errorf("fixed framework policy needs a framework id")
		}
		return FixedFramework{Catalog: catalog, ID: frameworkID}, nil
	}
	return nil, fmt.Errorf("unknown framework policy %q", name)
}
