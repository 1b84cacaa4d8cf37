package asaas

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

type Customer struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	MobilePhone string `json:"mobilePhone"`
	CPFCNPJ     string `json:"cpfCnpj"`
}

// CustomerParams is the payload for creating a customer.
type CustomerParams struct {
	Name        string `json:"name"`
	CPFCNPJ     string `json:"cpfCnpj"`
	Email       string `json:"email,omitempty"`
	MobilePhone string `json:"mobilePhone,omitempty"`
}

type customerList struct {
	Data []Customer `json:"data"`
}

// FindCustomerByCPF returns the first customer with the tax id, or nil when none exist.
func (c *Client) FindCustomerByCPF(ctx context.Context, cpf string) (*Customer, error) {
	c.log(ctx, "request", "search_customer", nil)
	var list customerList
	if err := c.do(ctx, "search_customer", http.MethodGet, "/customers", url.Values{"cpfCnpj": {cpf}}, nil, &list); err != nil {
		return nil, err
	}
	if len(list.Data) == 0 {
		c.log(ctx, "response", "search_customer", map[string]any{"found": false})
		return nil, nil
	}
	c.log(ctx, "response", "search_customer", map[string]any{"customer_id": list.Data[0].ID})
	return &list.Data[0], nil
}

func (c *Client) CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error) {
	c.log(ctx, "request", "create_customer", nil)
	var out Customer
	if err := c.do(ctx, "create_customer", http.MethodPost, "/customers", nil, params, &out); err != nil {
		return nil, err
	}
	c.log(ctx, "response", "create_customer", map[string]any{"customer_id": out.ID})
	return &out, nil
}

// EnsureCustomer reuses the customer registered under the CPF or creates one.
func (c *Client) EnsureCustomer(ctx context.Context, params CustomerParams) (*Customer, error) {
	existing, err := c.FindCustomerByCPF(ctx, params.CPFCNPJ)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return c.CreateCustomer(ctx, params)
}

func (c *Client) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	var out Customer
	if err := c.do(ctx, "get_customer", http.MethodGet, "/customers/"+url.PathEscape(strings.TrimSpace(customerID)), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
