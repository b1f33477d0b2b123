package model

// Item is a purchasable item kind
type Item string

const (
	ItemGoldCoin    Item = "gold_coin"
	ItemTreasureBox Item = "treasure_box"
)

// itemPrices is the fixed price table, in diamonds
var itemPrices = map[Item]int64{
	ItemGoldCoin:    10,
	ItemTreasureBox: 50,
}

// Price returns the price of an item, or ErrUnknownItem
func (i Item) Price() (int64, error) {
	price, ok := itemPrices[i]
	if !ok {
		return 0, ErrUnknownItem
	}
	return price, nil
}

// Items returns all catalog items
func Items() []Item {
	return []Item{ItemGoldCoin, ItemTreasureBox}
}
