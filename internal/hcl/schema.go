package hcl

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// fileRoot decodes all possible top-level blocks from any file.
type fileRoot struct {
	Targets      []*targetBlock      `hcl:"target,block"`
	Functions    []*functionBlock    `hcl:"function,block"`
	Requirements []*requirementBlock `hcl:"requirement,block"`
	MarketData   []*marketDataBlock  `hcl:"market_data,block"`
	Remain       hcl.Body            `hcl:",remain"`
}

type targetBlock struct {
	Type       string    `hcl:"type,label"`
	ID         string    `hcl:"id,label"`
	Attributes cty.Value `hcl:"attributes,optional"`
}

type functionBlock struct {
	ID             string         `hcl:"id,label"`
	TargetType     string         `hcl:"target_type"`
	Implementation string         `hcl:"implementation"`
	Priority       int            `hcl:"priority,optional"`
	Affinity       string         `hcl:"affinity,optional"`
	Cost           int            `hcl:"cost,optional"`
	Outputs        []*outputBlock `hcl:"output,block"`
	Inputs         []*inputBlock  `hcl:"input,block"`
}

type outputBlock struct {
	Name       string    `hcl:"name,label"`
	Properties cty.Value `hcl:"properties,optional"`
}

type inputBlock struct {
	Name        string         `hcl:"name,label"`
	Target      hcl.Expression `hcl:"target,optional"`
	Constraints cty.Value      `hcl:"constraints,optional"`
}

type requirementBlock struct {
	Name        string    `hcl:"name,label"`
	Target      string    `hcl:"target"`
	Constraints cty.Value `hcl:"constraints,optional"`
}

type marketDataBlock struct {
	Name       string         `hcl:"name,label"`
	Target     string         `hcl:"target"`
	Value      cty.Value      `hcl:"value"`
	Type       hcl.Expression `hcl:"type,optional"`
	Properties cty.Value      `hcl:"properties,optional"`
}
