package shopify

import (
	s "github.com/Matatika/tap-shopify/pkg/schema"
)

// Schemas follow the Admin REST API resources. Properties the API adds later
// pass through unvalidated.

func addressProperties() s.Properties {
	return s.Properties{
		"address1":      s.String(),
		"address2":      s.String(),
		"city":          s.String(),
		"company":       s.String(),
		"country":       s.String(),
		"country_code":  s.String(),
		"first_name":    s.String(),
		"last_name":     s.String(),
		"name":          s.String(),
		"phone":         s.String(),
		"province":      s.String(),
		"province_code": s.String(),
		"zip":           s.String(),
		"latitude":      s.Number(),
		"longitude":     s.Number(),
	}
}

func address() *s.Schema {
	return s.Object(addressProperties())
}

func moneySet() *s.Schema {
	money := s.Object(s.Properties{
		"amount":        s.String(),
		"currency_code": s.String(),
	})
	return s.Object(s.Properties{
		"shop_money":        money,
		"presentment_money": money,
	})
}

func taxLine() *s.Schema {
	return s.Object(s.Properties{
		"price":     s.String(),
		"rate":      s.Number(),
		"title":     s.String(),
		"price_set": moneySet(),
	})
}

func discountCode() *s.Schema {
	return s.Object(s.Properties{
		"code":   s.String(),
		"amount": s.String(),
		"type":   s.String(),
	})
}

func lineItem() *s.Schema {
	return s.Object(s.Properties{
		"id":                           s.Integer(),
		"admin_graphql_api_id":         s.String(),
		"fulfillable_quantity":         s.Integer(),
		"fulfillment_service":          s.String(),
		"fulfillment_status":           s.String(),
		"gift_card":                    s.Boolean(),
		"grams":                        s.Integer(),
		"name":                         s.String(),
		"price":                        s.String(),
		"price_set":                    moneySet(),
		"product_exists":               s.Boolean(),
		"product_id":                   s.Integer(),
		"properties":                   s.ArrayOf(s.Any()),
		"quantity":                     s.Integer(),
		"requires_shipping":            s.Boolean(),
		"sku":                          s.String(),
		"taxable":                      s.Boolean(),
		"title":                        s.String(),
		"total_discount":               s.String(),
		"total_discount_set":           moneySet(),
		"variant_id":                   s.Integer(),
		"variant_inventory_management": s.String(),
		"variant_title":                s.String(),
		"vendor":                       s.String(),
		"tax_lines":                    s.ArrayOf(taxLine()),
		"discount_allocations":         s.ArrayOf(s.Any()),
		"duties":                       s.ArrayOf(s.Any()),
	})
}

func customerProperties() s.Properties {
	return s.Properties{
		"id":                           s.Integer(),
		"admin_graphql_api_id":         s.String(),
		"accepts_marketing":            s.Boolean(),
		"accepts_marketing_updated_at": s.DateTime(),
		"created_at":                   s.DateTime(),
		"updated_at":                   s.DateTime(),
		"currency":                     s.String(),
		"email":                        s.String(),
		"first_name":                   s.String(),
		"last_name":                    s.String(),
		"last_order_id":                s.Integer(),
		"last_order_name":              s.String(),
		"marketing_opt_in_level":       s.String(),
		"multipass_identifier":         s.String(),
		"note":                         s.String(),
		"orders_count":                 s.Integer(),
		"phone":                        s.String(),
		"state":                        s.String(),
		"tags":                         s.String(),
		"tax_exempt":                   s.Boolean(),
		"tax_exemptions":               s.ArrayOf(s.String()),
		"total_spent":                  s.String(),
		"verified_email":               s.Boolean(),
		"default_address": s.Object(s.Merge(addressProperties(), s.Properties{
			"id":          s.Integer(),
			"customer_id": s.Integer(),
			"default":     s.Boolean(),
		})),
		"addresses": s.ArrayOf(s.Object(s.Merge(addressProperties(), s.Properties{
			"id":          s.Integer(),
			"customer_id": s.Integer(),
			"default":     s.Boolean(),
		}))),
		"email_marketing_consent": s.Object(s.Properties{
			"state":              s.String(),
			"opt_in_level":       s.String(),
			"consent_updated_at": s.DateTime(),
		}),
		"sms_marketing_consent": s.Object(s.Properties{
			"state":                  s.String(),
			"opt_in_level":           s.String(),
			"consent_updated_at":     s.DateTime(),
			"consent_collected_from": s.String(),
		}),
	}
}

func customerSchema() *s.Schema {
	return s.Record(customerProperties())
}

func abandonedCheckoutSchema() *s.Schema {
	return s.Record(s.Properties{
		"id":                      s.Integer(),
		"token":                   s.String(),
		"cart_token":              s.String(),
		"abandoned_checkout_url":  s.String(),
		"billing_address":         address(),
		"shipping_address":        address(),
		"buyer_accepts_marketing": s.Boolean(),
		"closed_at":               s.DateTime(),
		"completed_at":            s.DateTime(),
		"created_at":              s.DateTime(),
		"updated_at":              s.DateTime(),
		"currency":                s.String(),
		"presentment_currency":    s.String(),
		"customer":                s.Object(customerProperties()),
		"customer_locale":         s.String(),
		"device_id":               s.Integer(),
		"discount_codes":          s.ArrayOf(discountCode()),
		"email":                   s.String(),
		"gateway":                 s.String(),
		"landing_site":            s.String(),
		"line_items":              s.ArrayOf(lineItem()),
		"location_id":             s.Integer(),
		"name":                    s.String(),
		"note":                    s.String(),
		"note_attributes":         s.ArrayOf(s.Any()),
		"phone":                   s.String(),
		"referring_site":          s.String(),
		"shipping_lines":          s.ArrayOf(s.Any()),
		"source_name":             s.String(),
		"subtotal_price":          s.String(),
		"tax_lines":               s.ArrayOf(taxLine()),
		"taxes_included":          s.Boolean(),
		"total_discounts":         s.String(),
		"total_line_items_price":  s.String(),
		"total_price":             s.String(),
		"total_tax":               s.String(),
		"total_weight":            s.Integer(),
		"user_id":                 s.Integer(),
	})
}

func collectSchema() *s.Schema {
	return s.Record(s.Properties{
		"id":            s.Integer(),
		"collection_id": s.Integer(),
		"product_id":    s.Integer(),
		"position":      s.Integer(),
		"sort_value":    s.String(),
		"created_at":    s.DateTime(),
		"updated_at":    s.DateTime(),
	})
}

func customCollectionSchema() *s.Schema {
	return s.Record(s.Properties{
		"id":                   s.Integer(),
		"admin_graphql_api_id": s.String(),
		"body_html":            s.String(),
		"handle":               s.String(),
		"image": s.Object(s.Properties{
			"src":        s.String(),
			"alt":        s.String(),
			"width":      s.Integer(),
			"height":     s.Integer(),
			"created_at": s.DateTime(),
		}),
		"published_at":    s.DateTime(),
		"published_scope": s.String(),
		"sort_order":      s.String(),
		"template_suffix": s.String(),
		"title":           s.String(),
		"updated_at":      s.DateTime(),
	})
}

func locationSchema() *s.Schema {
	return s.Record(s.Merge(addressProperties(), s.Properties{
		"id":                      s.Integer(),
		"admin_graphql_api_id":    s.String(),
		"active":                  s.Boolean(),
		"country_name":            s.String(),
		"legacy":                  s.Boolean(),
		"localized_country_name":  s.String(),
		"localized_province_name": s.String(),
		"created_at":              s.DateTime(),
		"updated_at":              s.DateTime(),
	}))
}

func inventoryLevelSchema() *s.Schema {
	return s.Record(s.Properties{
		"inventory_item_id":    s.Integer(),
		"location_id":          s.Integer(),
		"available":            s.Integer(),
		"admin_graphql_api_id": s.String(),
		"updated_at":           s.DateTime(),
	})
}

func inventoryItemSchema() *s.Schema {
	return s.Record(s.Properties{
		"id":                              s.Integer(),
		"admin_graphql_api_id":            s.String(),
		"cost":                            s.String(),
		"country_code_of_origin":          s.String(),
		"country_harmonized_system_codes": s.ArrayOf(s.Any()),
		"harmonized_system_code":          s.String(),
		"province_code_of_origin":         s.String(),
		"requires_shipping":               s.Boolean(),
		"sku":                             s.String(),
		"tracked":                         s.Boolean(),
		"created_at":                      s.DateTime(),
		"updated_at":                      s.DateTime(),
	})
}

func metafieldSchema() *s.Schema {
	return s.Record(s.Properties{
		"id":                   s.Integer(),
		"admin_graphql_api_id": s.String(),
		"description":          s.String(),
		"key":                  s.String(),
		"namespace":            s.String(),
		"owner_id":             s.Integer(),
		"owner_resource":       s.String(),
		"type":                 s.String(),
		"value":                s.Any(),
		"created_at":           s.DateTime(),
		"updated_at":           s.DateTime(),
	})
}

func orderSchema() *s.Schema {
	return s.Record(s.Properties{
		"id":                      s.Integer(),
		"admin_graphql_api_id":    s.String(),
		"app_id":                  s.Integer(),
		"billing_address":         address(),
		"shipping_address":        address(),
		"browser_ip":              s.String(),
		"buyer_accepts_marketing": s.Boolean(),
		"cancel_reason":           s.String(),
		"cancelled_at":            s.DateTime(),
		"cart_token":              s.String(),
		"checkout_id":             s.Integer(),
		"checkout_token":          s.String(),
		"closed_at":               s.DateTime(),
		"confirmed":               s.Boolean(),
		"contact_email":           s.String(),
		"created_at":              s.DateTime(),
		"updated_at":              s.DateTime(),
		"processed_at":            s.DateTime(),
		"currency":                s.String(),
		"presentment_currency":    s.String(),
		"current_subtotal_price":  s.String(),
		"current_total_discounts": s.String(),
		"current_total_price":     s.String(),
		"current_total_tax":       s.String(),
		"customer":                s.Object(customerProperties()),
		"customer_locale":         s.String(),
		"discount_codes":          s.ArrayOf(discountCode()),
		"email":                   s.String(),
		"financial_status":        s.String(),
		"fulfillment_status":      s.String(),
		"fulfillments":            s.ArrayOf(s.Any()),
		"gateway":                 s.String(),
		"landing_site":            s.String(),
		"line_items":              s.ArrayOf(lineItem()),
		"location_id":             s.Integer(),
		"name":                    s.String(),
		"note":                    s.String(),
		"note_attributes":         s.ArrayOf(s.Any()),
		"number":                  s.Integer(),
		"order_number":            s.Integer(),
		"order_status_url":        s.String(),
		"payment_gateway_names":   s.ArrayOf(s.String()),
		"phone":                   s.String(),
		"referring_site":          s.String(),
		"refunds":                 s.ArrayOf(s.Any()),
		"shipping_lines":          s.ArrayOf(s.Any()),
		"source_name":             s.String(),
		"subtotal_price":          s.Number(),
		"tags":                    s.String(),
		"tax_lines":               s.ArrayOf(taxLine()),
		"taxes_included":          s.Boolean(),
		"test":                    s.Boolean(),
		"token":                   s.String(),
		"total_discounts":         s.String(),
		"total_line_items_price":  s.String(),
		"total_outstanding":       s.String(),
		"total_price":             s.Number(),
		"total_tax":               s.String(),
		"total_tip_received":      s.String(),
		"total_weight":            s.Integer(),
		"user_id":                 s.Integer(),
	})
}

func productSchema() *s.Schema {
	image := s.Object(s.Properties{
		"id":          s.Integer(),
		"product_id":  s.Integer(),
		"position":    s.Integer(),
		"alt":         s.String(),
		"src":         s.String(),
		"width":       s.Integer(),
		"height":      s.Integer(),
		"variant_ids": s.ArrayOf(s.Integer()),
		"created_at":  s.DateTime(),
		"updated_at":  s.DateTime(),
	})
	return s.Record(s.Properties{
		"id":                   s.Integer(),
		"admin_graphql_api_id": s.String(),
		"body_html":            s.String(),
		"handle":               s.String(),
		"image":                image,
		"images":               s.ArrayOf(image),
		"options": s.ArrayOf(s.Object(s.Properties{
			"id":         s.Integer(),
			"product_id": s.Integer(),
			"name":       s.String(),
			"position":   s.Integer(),
			"values":     s.ArrayOf(s.String()),
		})),
		"product_type":    s.String(),
		"published_at":    s.DateTime(),
		"published_scope": s.String(),
		"status":          s.String(),
		"tags":            s.String(),
		"template_suffix": s.String(),
		"title":           s.String(),
		"vendor":          s.String(),
		"created_at":      s.DateTime(),
		"updated_at":      s.DateTime(),
		"variants": s.ArrayOf(s.Object(s.Properties{
			"id":                   s.Integer(),
			"product_id":           s.Integer(),
			"barcode":              s.String(),
			"compare_at_price":     s.String(),
			"fulfillment_service":  s.String(),
			"grams":                s.Integer(),
			"image_id":             s.Integer(),
			"inventory_item_id":    s.Integer(),
			"inventory_management": s.String(),
			"inventory_policy":     s.String(),
			"inventory_quantity":   s.Integer(),
			"option1":              s.String(),
			"option2":              s.String(),
			"option3":              s.String(),
			"position":             s.Integer(),
			"price":                s.String(),
			"requires_shipping":    s.Boolean(),
			"sku":                  s.String(),
			"taxable":              s.Boolean(),
			"title":                s.String(),
			"weight":               s.Number(),
			"weight_unit":          s.String(),
			"created_at":           s.DateTime(),
			"updated_at":           s.DateTime(),
		})),
	})
}

func transactionSchema() *s.Schema {
	return s.Record(s.Properties{
		"id":                   s.Integer(),
		"admin_graphql_api_id": s.String(),
		"amount":               s.String(),
		"authorization":        s.String(),
		"currency":             s.String(),
		"device_id":            s.Integer(),
		"error_code":           s.String(),
		"gateway":              s.String(),
		"kind":                 s.String(),
		"location_id":          s.Integer(),
		"message":              s.String(),
		"order_id":             s.Integer(),
		"parent_id":            s.Integer(),
		"payment_details":      s.Object(nil),
		"receipt":              s.Any(),
		"source_name":          s.String(),
		"status":               s.String(),
		"test":                 s.Boolean(),
		"user_id":              s.Integer(),
		"created_at":           s.DateTime(),
		"processed_at":         s.DateTime(),
	})
}

func refundSchema() *s.Schema {
	return s.Record(s.Properties{
		"id":                   s.Integer(),
		"admin_graphql_api_id": s.String(),
		"order_id":             s.Integer(),
		"note":                 s.String(),
		"restock":              s.Boolean(),
		"user_id":              s.Integer(),
		"created_at":           s.DateTime(),
		"processed_at":         s.DateTime(),
		"duties":               s.ArrayOf(s.Any()),
		"order_adjustments":    s.ArrayOf(s.Any()),
		"transactions":         s.ArrayOf(s.Any()),
		"refund_line_items": s.ArrayOf(s.Object(s.Properties{
			"id":           s.Integer(),
			"line_item_id": s.Integer(),
			"location_id":  s.Integer(),
			"quantity":     s.Integer(),
			"restock_type": s.String(),
			"subtotal":     s.Number(),
			"total_tax":    s.Number(),
			"line_item":    lineItem(),
		})),
	})
}

func userSchema() *s.Schema {
	return s.Record(s.Properties{
		"id":                    s.Integer(),
		"account_owner":         s.Boolean(),
		"bio":                   s.String(),
		"email":                 s.String(),
		"first_name":            s.String(),
		"last_name":             s.String(),
		"im":                    s.String(),
		"locale":                s.String(),
		"permissions":           s.ArrayOf(s.String()),
		"phone":                 s.String(),
		"receive_announcements": s.Integer(),
		"screen_name":           s.String(),
		"url":                   s.String(),
		"user_type":             s.String(),
		"tfa_enabled":           s.Boolean(),
	})
}
